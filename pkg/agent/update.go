package agent

import (
	"fmt"

	"fwagent/pkg/protocol"
)

// pollUpdate streams buffered payload bytes into flash. Only a grain-aligned
// prefix is written each tick; an odd tail byte is compacted to the front of
// the buffer and waits for its partner.
func (s *Session) pollUpdate() error {
	s.fill()

	remaining := s.update.total - s.update.written
	grain := uint32(s.region.Grain())

	nr := uint32(s.prod)
	nr -= nr % grain
	if nr > remaining {
		nr = remaining
	}

	if nr > 0 {
		if err := s.region.WriteAt(s.update.written, s.buf[:nr]); err != nil {
			return fmt.Errorf("program image at %d: %w", s.update.written, err)
		}
		s.update.written += nr
		copy(s.buf[:], s.buf[nr:s.prod])
		s.prod -= int(nr)
	}

	if s.update.written == s.update.total {
		return s.finishUpdate()
	}
	return nil
}

// finishUpdate reads the programmed image back, verifies its checksum and
// reports the single-byte result. A failed image is erased on the spot: a
// device left with no firmware demands an update, while one holding a
// corrupt image could try to boot it.
func (s *Session) finishUpdate() error {
	image := make([]byte, s.update.total)
	if err := s.region.ReadAt(0, image); err != nil {
		return fmt.Errorf("read back image: %w", err)
	}

	result := protocol.ResultOK
	if protocol.CRC16CCITT(image, protocol.CRC16Seed) != 0 {
		result = protocol.ResultChecksumFailed
		s.log.Error("image verification failed, erasing region")
		if err := s.region.EraseAll(); err != nil {
			return fmt.Errorf("erase after failed verification: %w", err)
		}
	} else {
		s.log.Info("image verified: %d bytes", s.update.total)
	}

	// Discard anything the host sent past the declared image length.
	s.prod = 0
	s.tx = protocol.EncodeResult(result)

	if err := s.sm.Event(eventComplete); err != nil {
		return fmt.Errorf("complete update: %w", err)
	}
	return nil
}
