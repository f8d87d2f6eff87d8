package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeGetInfoCmd constructs a get-info command frame.
//
// Frame structure:
//
//	[CMD][LEN][INDEX]
//
// The index byte is reserved and must be zero.
func EncodeGetInfoCmd() []byte {
	return []byte{CmdGetInfo, GetInfoFrameLen, 0}
}

// EncodeUpdateCmd constructs an update command frame for an image of the
// given length in bytes. The length must be a multiple of ImageLenMultiple.
//
// Frame structure:
//
//	[CMD][LEN][IMAGE_LEN(4, little-endian)]
func EncodeUpdateCmd(imageLen uint32) ([]byte, error) {
	if imageLen%ImageLenMultiple != 0 {
		return nil, fmt.Errorf("image length %d is not a multiple of %d", imageLen, ImageLenMultiple)
	}

	frame := make([]byte, UpdateFrameLen)
	frame[0] = CmdUpdate
	frame[1] = UpdateFrameLen
	binary.LittleEndian.PutUint32(frame[2:], imageLen)
	return frame, nil
}

// FrameComplete reports whether buf holds at least one complete command
// frame. A frame is complete once at least as many bytes as its own declared
// length (byte 1) have arrived.
func FrameComplete(buf []byte) bool {
	return len(buf) >= HeaderSize && len(buf) >= int(buf[1])
}

// EncodeAck constructs the minimal 2-byte acknowledgement. The command id
// slot echoes the request; the length slot is repurposed as a status code.
func EncodeAck(cmd byte, st Status) []byte {
	return []byte{cmd, byte(st)}
}

// EncodeInfoAck constructs the get-info acknowledgement: the 2-byte ok
// header followed by the fixed-size, zero-padded info record.
func EncodeInfoAck(info *DeviceInfo) []byte {
	ack := make([]byte, HeaderSize+InfoRecordSize)
	ack[0] = CmdGetInfo
	ack[1] = byte(StatusOK)
	info.MarshalTo(ack[HeaderSize:])
	return ack
}

// ParseAck extracts the echoed command id and status code from an
// acknowledgement header.
func ParseAck(b []byte) (cmd byte, st Status, err error) {
	if len(b) < HeaderSize {
		return 0, 0, fmt.Errorf("acknowledgement too short: got %d bytes, need %d", len(b), HeaderSize)
	}
	return b[0], Status(b[1]), nil
}

// EncodeResult constructs the single-byte update completion acknowledgement.
func EncodeResult(r Result) []byte {
	return []byte{byte(r)}
}
