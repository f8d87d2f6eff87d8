package host

import "time"

// Progress phases reported to the callback.
const (
	// PhaseArming means the update command is being negotiated; the
	// device erases its flash region during this phase
	PhaseArming = "arming"

	// PhaseTransferring means image bytes are streaming to the device
	PhaseTransferring = "transferring"

	// PhaseVerifying means the transfer is done and the device is
	// checking the image
	PhaseVerifying = "verifying"

	// PhaseComplete means the update finished successfully
	PhaseComplete = "complete"
)

// Progress contains information about the update progress. Passed to
// ProgressCallback during an Update call.
type Progress struct {
	// Phase describes the current operation phase
	Phase string

	// BytesWritten is the number of image bytes sent so far
	BytesWritten int

	// TotalBytes is the full image size
	TotalBytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the update started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically during an update to report
// progress. Implementations should return quickly to avoid stalling the
// transfer.
type ProgressCallback func(Progress)
