package protocol

// Command ids.
const (
	// CmdGetInfo requests the device info record
	CmdGetInfo byte = 1

	// CmdUpdate arms a full-image firmware update
	CmdUpdate byte = 2

	// MaxCommand is the highest command id the agent implements
	MaxCommand = CmdUpdate
)

// AgentRevision is the protocol revision the update agent reports in the
// info record's MaxRev field. Zero tells the host it is talking to the
// update agent rather than the main firmware.
const AgentRevision byte = 0

// Frame geometry.
const (
	// HeaderSize is the size of the command/acknowledgement header:
	// command id (1) + declared length or status (1)
	HeaderSize = 2

	// GetInfoFrameLen is the total get-info request length:
	// header (2) + reserved index byte (1)
	GetInfoFrameLen byte = 3

	// UpdateFrameLen is the total update request length:
	// header (2) + image length (4)
	UpdateFrameLen byte = 6

	// InfoRecordSize is the fixed, zero-padded size of the device info
	// record carried in the get-info acknowledgement
	InfoRecordSize = 32

	// ImageLenMultiple is the required granularity of a declared image
	// length
	ImageLenMultiple = 4
)

// InfoFlagStrapped is bit 0 of the info record's flags byte. Set when the
// device entered the update agent because of a hardware strap condition.
const InfoFlagStrapped byte = 1 << 0

// CRC16Seed is the initial value for the image checksum.
const CRC16Seed uint16 = 0xFFFF

// Status is the protocol-level outcome carried in an acknowledgement header.
type Status byte

const (
	// StatusOK indicates the command was accepted
	StatusOK Status = 0

	// StatusBadCommand indicates a malformed or unsupported command
	StatusBadCommand Status = 1
)

// String returns string representation of Status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBadCommand:
		return "bad command"
	default:
		return "unknown"
	}
}

// Result is the verification outcome closing an update. It shares a wire
// position with Status but has different semantics; keep the types apart and
// serialize only at the encoding boundary.
type Result byte

const (
	// ResultOK indicates the written image verified clean
	ResultOK Result = 0

	// ResultChecksumFailed indicates the written image failed verification
	ResultChecksumFailed Result = 1
)

// String returns string representation of Result
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultChecksumFailed:
		return "checksum failed"
	default:
		return "unknown"
	}
}
