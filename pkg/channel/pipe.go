package channel

import (
	"bytes"
	"fmt"
	"sync"
)

// PipeEndpoint is one side of an in-memory endpoint pair. Writes land in the
// peer's receive buffer; reads drain the local one. Used by tests and by
// anything that wants to drive a session without a real transport.
type PipeEndpoint struct {
	mu       sync.Mutex
	rx       bytes.Buffer
	closed   bool
	listener StateListener
	stats    TransportStats

	peer *PipeEndpoint
}

// Pipe creates a connected pair of in-memory endpoints.
func Pipe() (*PipeEndpoint, *PipeEndpoint) {
	a := &PipeEndpoint{}
	b := &PipeEndpoint{}
	a.peer = b
	b.peer = a
	return a, b
}

// RxReady implements Endpoint.
func (p *PipeEndpoint) RxReady() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rx.Len()
}

// TxReady implements Endpoint.
func (p *PipeEndpoint) TxReady() bool {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return false
	}

	p.peer.mu.Lock()
	defer p.peer.mu.Unlock()
	return !p.peer.closed
}

// Read implements Endpoint.
func (p *PipeEndpoint) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rx.Len() == 0 {
		return 0, nil
	}
	n, _ := p.rx.Read(buf)
	p.stats.BytesReceived += uint64(n)
	return n, nil
}

// Write implements Endpoint.
func (p *PipeEndpoint) Write(data []byte) error {
	p.peer.mu.Lock()
	if p.peer.closed {
		p.peer.mu.Unlock()
		p.mu.Lock()
		p.stats.WriteErrors++
		p.mu.Unlock()
		return fmt.Errorf("pipe closed")
	}
	p.peer.rx.Write(data)
	p.peer.mu.Unlock()

	p.mu.Lock()
	p.stats.BytesSent += uint64(len(data))
	p.mu.Unlock()
	return nil
}

// Close implements Endpoint. Both sides observe the close; the peer's
// listener is reset.
func (p *PipeEndpoint) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener.Reset()
	}

	p.peer.mu.Lock()
	peerListener := p.peer.listener
	p.peer.mu.Unlock()
	if peerListener != nil {
		peerListener.Reset()
	}

	return nil
}

// SetStateListener implements Endpoint. A pipe is live from creation, so the
// listener is configured immediately.
func (p *PipeEndpoint) SetStateListener(l StateListener) {
	p.mu.Lock()
	p.listener = l
	closed := p.closed
	p.mu.Unlock()

	if l != nil && !closed {
		l.Configure()
	}
}

// Statistics implements Endpoint.
func (p *PipeEndpoint) Statistics() TransportStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
