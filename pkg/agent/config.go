package agent

import (
	"time"

	"fwagent/pkg/logger"
)

// DefaultPollInterval is the tick period Run uses when the config does not
// set one.
const DefaultPollInterval = 5 * time.Millisecond

// Config configures an update session
type Config struct {
	// FirmwareMajor and FirmwareMinor are reported in the info record
	FirmwareMajor byte
	FirmwareMinor byte

	// Strapped marks that the device entered the update agent because of
	// a hardware strap condition
	Strapped bool

	// Logger for session events (defaults to no-op)
	Logger logger.Logger

	// PollInterval is the tick period for Run (defaults to
	// DefaultPollInterval)
	PollInterval time.Duration
}
