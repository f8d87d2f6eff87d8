// Package channel provides the byte-stream transports the update session
// runs over. An Endpoint exposes the polled, non-blocking primitives the
// agent's tick loop needs; implementations adapt TCP, QUIC, serial ports or
// in-memory pipes to that shape.
package channel

// StateListener receives transport lifecycle notifications. The session
// registers itself here; Configure marks a (re)opened control channel,
// Reset marks a closed one.
type StateListener interface {
	// Configure is called when the transport becomes ready for a session
	Configure()

	// Reset is called when the transport is torn down
	Reset()
}

// Endpoint represents a pluggable transport for one logical control channel.
// All methods are non-blocking: the poll loop asks for readiness each tick
// and transfers only what is already buffered.
type Endpoint interface {
	// RxReady returns the number of received bytes ready to Read.
	// Zero means nothing is pending this tick.
	RxReady() int

	// TxReady reports whether the outbound side can accept a Write
	TxReady() bool

	// Read copies up to len(p) already-received bytes into p and returns
	// the count. It never blocks; with nothing pending it returns 0.
	Read(p []byte) (int, error)

	// Write queues data for transmission
	Write(p []byte) error

	// Close tears down the transport and releases resources
	Close() error

	// SetStateListener registers the listener for configure/reset
	// events. If the transport is already live, the listener is
	// configured immediately.
	SetStateListener(l StateListener)

	// Statistics returns transport-level statistics
	Statistics() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections
	Disconnects   uint64 // Number of disconnections
}
