package channel

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func newServerEndpoint(t *testing.T) (*TCPEndpoint, *recordingListener) {
	t.Helper()

	ep, err := NewTCPEndpoint(TCPEndpointConfig{Address: "127.0.0.1:0", IsServer: true})
	if err != nil {
		t.Fatalf("NewTCPEndpoint: %v", err)
	}
	t.Cleanup(func() { ep.Close() })

	var l recordingListener
	ep.SetStateListener(&l)
	return ep, &l
}

func TestTCPEndpointAcceptsAndTransfers(t *testing.T) {
	ep, l := newServerEndpoint(t)

	conn, err := net.Dial("tcp", ep.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	eventually(t, func() bool { return ep.TxReady() }, "server never accepted")
	eventually(t, func() bool { return l.configures.Load() == 1 }, "listener never configured")

	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("client write: %v", err)
	}
	eventually(t, func() bool { return ep.RxReady() == 3 }, "bytes never pumped")

	got := make([]byte, 8)
	n, _ := ep.Read(got)
	if !bytes.Equal(got[:n], []byte{1, 2, 3}) {
		t.Fatalf("read %v", got[:n])
	}

	if err := ep.Write([]byte{9, 8}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply := make([]byte, 2)
	if _, err := conn.Read(reply); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if !bytes.Equal(reply, []byte{9, 8}) {
		t.Fatalf("client got %v", reply)
	}
}

func TestTCPEndpointNewConnectionReplacesOld(t *testing.T) {
	ep, l := newServerEndpoint(t)

	first, err := net.Dial("tcp", ep.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	eventually(t, func() bool { return ep.Statistics().Connects == 1 }, "first connect missed")

	second, err := net.Dial("tcp", ep.Addr().String())
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer second.Close()
	eventually(t, func() bool { return ep.Statistics().Connects == 2 }, "second connect missed")

	// The replaced session was reset, then the new one configured.
	eventually(t, func() bool { return l.resets.Load() >= 1 }, "no reset for the replaced connection")
	eventually(t, func() bool { return l.configures.Load() == 2 }, "no configure for the new connection")

	// The first socket is closed out from under the old client.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := first.Read(make([]byte, 1)); err == nil {
		t.Fatal("old connection still alive")
	}
}

func TestTCPEndpointResetsWhenClientLeaves(t *testing.T) {
	ep, l := newServerEndpoint(t)

	conn, err := net.Dial("tcp", ep.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	eventually(t, func() bool { return ep.TxReady() }, "server never accepted")

	conn.Close()
	eventually(t, func() bool { return !ep.TxReady() }, "server never noticed the close")
	eventually(t, func() bool { return l.resets.Load() == 1 }, "listener never reset")

	if err := ep.Write([]byte{1}); err == nil {
		t.Error("write without a connection succeeded")
	}
}
