package channel

import (
	"bytes"
	"sync/atomic"
	"testing"
)

// recordingListener counts notifications. Counters are atomic because the
// TCP endpoint notifies from its accept goroutine.
type recordingListener struct {
	configures atomic.Int32
	resets     atomic.Int32
}

func (r *recordingListener) Configure() { r.configures.Add(1) }
func (r *recordingListener) Reset()     { r.resets.Add(1) }

func TestPipeTransfersBytesToPeer(t *testing.T) {
	a, b := Pipe()

	if err := a.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if a.RxReady() != 0 {
		t.Error("writer's own receive buffer should stay empty")
	}
	if b.RxReady() != 3 {
		t.Fatalf("peer has %d bytes pending, want 3", b.RxReady())
	}

	got := make([]byte, 8)
	n, err := b.Read(got)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got[:n], []byte{1, 2, 3}) {
		t.Fatalf("read %v, want [1 2 3]", got[:n])
	}

	// Drained.
	if n, _ := b.Read(got); n != 0 {
		t.Fatalf("second read returned %d bytes, want 0", n)
	}
}

func TestPipePartialRead(t *testing.T) {
	a, b := Pipe()

	if err := a.Write([]byte{10, 20, 30, 40}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := make([]byte, 2)
	if n, _ := b.Read(got); n != 2 {
		t.Fatalf("first read = %d bytes, want 2", n)
	}
	if b.RxReady() != 2 {
		t.Fatalf("pending after partial read = %d, want 2", b.RxReady())
	}
	if n, _ := b.Read(got); n != 2 || got[0] != 30 || got[1] != 40 {
		t.Fatalf("second read = %d bytes %v", n, got)
	}
}

func TestPipeListenerLifecycle(t *testing.T) {
	a, b := Pipe()

	var l recordingListener
	a.SetStateListener(&l)
	if got := l.configures.Load(); got != 1 {
		t.Fatalf("configures = %d after registration, want 1", got)
	}

	b.Close()
	if got := l.resets.Load(); got != 1 {
		t.Fatalf("resets = %d after peer close, want 1", got)
	}
	if a.TxReady() {
		t.Error("TxReady after peer close")
	}
	if err := a.Write([]byte{1}); err == nil {
		t.Error("write to closed peer succeeded")
	}
}

func TestPipeStatistics(t *testing.T) {
	a, b := Pipe()

	a.Write([]byte{1, 2, 3, 4, 5})
	b.Read(make([]byte, 5))

	if s := a.Statistics(); s.BytesSent != 5 {
		t.Fatalf("BytesSent = %d, want 5", s.BytesSent)
	}
	if s := b.Statistics(); s.BytesReceived != 5 {
		t.Fatalf("BytesReceived = %d, want 5", s.BytesReceived)
	}
}
