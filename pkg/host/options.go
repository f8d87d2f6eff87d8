package host

import "fwagent/pkg/logger"

// Config holds the updater configuration.
type Config struct {
	// ProgressCallback is called during transfer to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger logger.Logger

	// ChunkSize is the maximum payload size per device write.
	// Default is 512 bytes.
	ChunkSize int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoOpLogger(),
		ChunkSize: 512,
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	up := host.New(device,
//	    host.WithProgressCallback(func(p host.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the updater operations.
func WithLogger(log logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithChunkSize sets the maximum payload size per device write.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}
