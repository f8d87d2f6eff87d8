package agent

import (
	"encoding/binary"
	"fmt"

	"fwagent/pkg/protocol"
)

// pollCommand accumulates command bytes and dispatches once a full frame is
// buffered.
func (s *Session) pollCommand() error {
	s.fill()
	if !protocol.FrameComplete(s.buf[:s.prod]) {
		return nil
	}
	return s.processCommand()
}

// processCommand dispatches one complete command frame. Every path ends the
// command with a response and an empty receive buffer.
func (s *Session) processCommand() error {
	cmd := s.buf[0]
	declared := int(s.buf[1])

	switch cmd {
	case protocol.CmdGetInfo:
		s.handleGetInfo(declared)
	case protocol.CmdUpdate:
		return s.handleUpdate(declared)
	default:
		s.log.Warn("unknown command %d", cmd)
		s.endCommand(protocol.EncodeAck(cmd, protocol.StatusBadCommand))
	}
	return nil
}

// handleGetInfo answers the info request with the fixed-size device record.
// The third byte is a reserved index and must be zero.
func (s *Session) handleGetInfo(declared int) {
	if declared != int(protocol.GetInfoFrameLen) || s.buf[2] != 0 {
		s.endCommand(protocol.EncodeAck(protocol.CmdGetInfo, protocol.StatusBadCommand))
		return
	}

	info := &protocol.DeviceInfo{
		MaxRev:        protocol.AgentRevision,
		MaxCmd:        protocol.MaxCommand,
		FirmwareMajor: s.cfg.FirmwareMajor,
		FirmwareMinor: s.cfg.FirmwareMinor,
	}
	if s.cfg.Strapped {
		info.Flags |= protocol.InfoFlagStrapped
	}

	s.endCommand(protocol.EncodeInfoAck(info))
}

// handleUpdate validates the declared image length, erases the whole region
// and arms the payload stream. The ok acknowledgement goes out only after the
// erase so the host never streams into unerased flash.
func (s *Session) handleUpdate(declared int) error {
	if declared != int(protocol.UpdateFrameLen) {
		s.endCommand(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusBadCommand))
		return nil
	}

	imageLen := binary.LittleEndian.Uint32(s.buf[2:6])
	if imageLen%protocol.ImageLenMultiple != 0 || imageLen > s.region.Length() {
		s.log.Warn("rejecting update of %d bytes (region %d)", imageLen, s.region.Length())
		s.endCommand(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusBadCommand))
		return nil
	}

	if err := s.region.EraseAll(); err != nil {
		return fmt.Errorf("erase before update: %w", err)
	}

	s.update.total = imageLen
	s.update.written = 0
	if err := s.sm.Event(eventArm); err != nil {
		return fmt.Errorf("arm update: %w", err)
	}
	s.log.Info("update armed: %d bytes", imageLen)

	s.endCommand(protocol.EncodeAck(protocol.CmdUpdate, protocol.StatusOK))
	return nil
}

// endCommand holds the response for transmission and discards the consumed
// frame.
func (s *Session) endCommand(resp []byte) {
	s.tx = resp
	s.prod = 0
}
