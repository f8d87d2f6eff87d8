package channel

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// StreamEndpoint adapts any blocking byte stream (net.Conn, serial port,
// QUIC stream) to the polled Endpoint shape. A background goroutine pumps
// the stream into an internal receive buffer; the poll loop drains it
// without ever blocking.
type StreamEndpoint struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	rw       io.ReadWriteCloser
	live     bool
	listener StateListener

	closed atomic.Bool
	wg     sync.WaitGroup

	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
	}
}

// NewStreamEndpoint wraps an already-open stream and starts pumping it.
func NewStreamEndpoint(rw io.ReadWriteCloser) *StreamEndpoint {
	ep := &StreamEndpoint{rw: rw, live: true}

	ep.wg.Add(1)
	go ep.pump()

	return ep
}

// pump moves bytes from the stream into the receive buffer until the stream
// errors or the endpoint is closed.
func (ep *StreamEndpoint) pump() {
	defer ep.wg.Done()

	buf := make([]byte, 512)
	for {
		n, err := ep.rw.Read(buf)
		if n > 0 {
			ep.mu.Lock()
			ep.rx.Write(buf[:n])
			ep.mu.Unlock()
			ep.stats.bytesReceived.Add(uint64(n))
		}
		if err != nil {
			if !ep.closed.Load() {
				ep.stats.readErrors.Add(1)
			}
			ep.markDead()
			return
		}
	}
}

// markDead flags the stream as gone and notifies the listener once.
func (ep *StreamEndpoint) markDead() {
	ep.mu.Lock()
	wasLive := ep.live
	ep.live = false
	listener := ep.listener
	ep.mu.Unlock()

	if wasLive && listener != nil {
		listener.Reset()
	}
}

// RxReady implements Endpoint.
func (ep *StreamEndpoint) RxReady() int {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.rx.Len()
}

// TxReady implements Endpoint.
func (ep *StreamEndpoint) TxReady() bool {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.live
}

// Read implements Endpoint.
func (ep *StreamEndpoint) Read(p []byte) (int, error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.rx.Len() == 0 {
		return 0, nil
	}
	n, _ := ep.rx.Read(p)
	return n, nil
}

// Write implements Endpoint.
func (ep *StreamEndpoint) Write(p []byte) error {
	ep.mu.Lock()
	live := ep.live
	ep.mu.Unlock()
	if !live {
		ep.stats.writeErrors.Add(1)
		return fmt.Errorf("stream closed")
	}

	if _, err := ep.rw.Write(p); err != nil {
		ep.stats.writeErrors.Add(1)
		ep.markDead()
		return fmt.Errorf("stream write: %w", err)
	}
	ep.stats.bytesSent.Add(uint64(len(p)))
	return nil
}

// Close implements Endpoint.
func (ep *StreamEndpoint) Close() error {
	if !ep.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := ep.rw.Close()
	ep.markDead()
	ep.wg.Wait()
	return err
}

// SetStateListener implements Endpoint. The stream was open when the
// endpoint was built, so a live endpoint configures the listener right away.
func (ep *StreamEndpoint) SetStateListener(l StateListener) {
	ep.mu.Lock()
	ep.listener = l
	live := ep.live
	ep.mu.Unlock()

	if l != nil && live {
		l.Configure()
	}
}

// Statistics implements Endpoint.
func (ep *StreamEndpoint) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     ep.stats.bytesSent.Load(),
		BytesReceived: ep.stats.bytesReceived.Load(),
		WriteErrors:   ep.stats.writeErrors.Load(),
		ReadErrors:    ep.stats.readErrors.Load(),
	}
}
