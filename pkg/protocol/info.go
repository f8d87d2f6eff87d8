package protocol

import "fmt"

// DeviceInfo is the fixed-layout descriptor returned by the get-info
// command. The record occupies InfoRecordSize bytes on the wire; bytes past
// the flags field are zero padding.
//
// Record layout:
//
//	[MAX_REV][MAX_CMD][FW_MAJOR][FW_MINOR][FLAGS][PADDING...]
type DeviceInfo struct {
	// MaxRev is the maximum supported protocol revision. The update agent
	// always reports AgentRevision (zero).
	MaxRev byte

	// MaxCmd is the maximum supported command id
	MaxCmd byte

	// FirmwareMajor and FirmwareMinor identify the agent firmware version
	FirmwareMajor byte
	FirmwareMinor byte

	// Flags holds capability bits; see InfoFlagStrapped
	Flags byte
}

// Strapped reports whether the device booted into the update agent because
// of a hardware strap condition.
func (i *DeviceInfo) Strapped() bool {
	return i.Flags&InfoFlagStrapped != 0
}

// Marshal returns the InfoRecordSize-byte wire form of the record.
func (i *DeviceInfo) Marshal() []byte {
	rec := make([]byte, InfoRecordSize)
	i.MarshalTo(rec)
	return rec
}

// MarshalTo writes the record into p, which must hold at least
// InfoRecordSize bytes. Bytes past the defined fields are zeroed.
func (i *DeviceInfo) MarshalTo(p []byte) {
	_ = p[InfoRecordSize-1]
	for n := 0; n < InfoRecordSize; n++ {
		p[n] = 0
	}
	p[0] = i.MaxRev
	p[1] = i.MaxCmd
	p[2] = i.FirmwareMajor
	p[3] = i.FirmwareMinor
	p[4] = i.Flags
}

// ParseDeviceInfo decodes an info record from its wire form.
func ParseDeviceInfo(p []byte) (*DeviceInfo, error) {
	if len(p) < InfoRecordSize {
		return nil, fmt.Errorf("info record too short: got %d bytes, expected %d", len(p), InfoRecordSize)
	}

	return &DeviceInfo{
		MaxRev:        p[0],
		MaxCmd:        p[1],
		FirmwareMajor: p[2],
		FirmwareMinor: p[3],
		Flags:         p[4],
	}, nil
}
