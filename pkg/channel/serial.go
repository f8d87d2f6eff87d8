package channel

import (
	"fmt"

	"go.bug.st/serial"
)

// SerialConfig configures a serial endpoint
type SerialConfig struct {
	Port     string // Device path, e.g. "/dev/ttyACM0" or "COM3"
	BaudRate int    // Defaults to 115200
}

// NewSerialEndpoint opens a serial port in 8N1 mode and wraps it in a
// StreamEndpoint.
func NewSerialEndpoint(config SerialConfig) (*StreamEndpoint, error) {
	if config.Port == "" {
		return nil, fmt.Errorf("serial port is required")
	}
	if config.BaudRate == 0 {
		config.BaudRate = 115200
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(config.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Port, err)
	}

	return NewStreamEndpoint(port), nil
}
