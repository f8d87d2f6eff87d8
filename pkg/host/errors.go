package host

import (
	"fmt"

	"fwagent/pkg/protocol"
)

// CommandRejectedError indicates the device refused a command.
type CommandRejectedError struct {
	Cmd    byte
	Status protocol.Status
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("device rejected command %d: %s", e.Cmd, e.Status)
}

// AckMismatchError indicates the acknowledgement echoed a different command
// id than the one sent, meaning host and device are out of step.
type AckMismatchError struct {
	Sent   byte
	Echoed byte
}

func (e *AckMismatchError) Error() string {
	return fmt.Sprintf("acknowledgement echoed command %d, sent %d", e.Echoed, e.Sent)
}

// VerificationError indicates the device reported a bad image checksum after
// the transfer. The device has erased the image; the update must be retried.
type VerificationError struct {
	Result protocol.Result
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("image verification failed on device: %s", e.Result)
}
