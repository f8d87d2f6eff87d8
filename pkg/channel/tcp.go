package channel

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPEndpoint implements Endpoint over TCP connections
type TCPEndpoint struct {
	// Connection
	conn     net.Conn
	connLock sync.RWMutex

	// Receive buffer filled by the per-connection pump
	rxLock sync.Mutex
	rx     bytes.Buffer

	// Configuration
	address        string
	isServer       bool
	listener       net.Listener
	reconnectDelay time.Duration
	writeTimeout   time.Duration

	// Session state listener
	stateListener     StateListener
	stateListenerLock sync.RWMutex

	// Statistics
	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		writeErrors   atomic.Uint64
		readErrors    atomic.Uint64
		connects      atomic.Uint64
		disconnects   atomic.Uint64
	}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// TCPEndpointConfig configures a TCP endpoint
type TCPEndpointConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
}

// NewTCPEndpoint creates a new TCP endpoint
func NewTCPEndpoint(config TCPEndpointConfig) (*TCPEndpoint, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	// Set defaults
	if config.ReconnectDelay == 0 {
		config.ReconnectDelay = 5 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	te := &TCPEndpoint{
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		writeTimeout:   config.WriteTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	if config.IsServer {
		if err := te.startServer(); err != nil {
			cancel()
			return nil, err
		}
	} else {
		if err := te.connect(); err != nil {
			cancel()
			return nil, err
		}
	}

	return te, nil
}

// startServer starts listening for incoming connections
func (te *TCPEndpoint) startServer() error {
	listener, err := net.Listen("tcp", te.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", te.address, err)
	}

	te.listener = listener

	// Accept connections in background
	te.wg.Add(1)
	go te.acceptLoop()

	return nil
}

// acceptLoop accepts incoming connections. A new connection replaces any
// existing one.
func (te *TCPEndpoint) acceptLoop() {
	defer te.wg.Done()

	for {
		select {
		case <-te.ctx.Done():
			return
		default:
		}

		// Set accept deadline to allow periodic context checks
		if tcpListener, ok := te.listener.(*net.TCPListener); ok {
			tcpListener.SetDeadline(time.Now().Add(1 * time.Second))
		}

		conn, err := te.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if te.closed.Load() {
				return
			}
			continue
		}

		te.installConn(conn)
	}
}

// connect establishes a connection to the remote server
func (te *TCPEndpoint) connect() error {
	conn, err := net.DialTimeout("tcp", te.address, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", te.address, err)
	}

	te.installConn(conn)

	// Start reconnection handler for clients
	te.wg.Add(1)
	go te.reconnectLoop()

	return nil
}

// reconnectLoop handles automatic reconnection for client mode
func (te *TCPEndpoint) reconnectLoop() {
	defer te.wg.Done()

	for {
		select {
		case <-te.ctx.Done():
			return
		case <-time.After(te.reconnectDelay):
			te.connLock.RLock()
			conn := te.conn
			te.connLock.RUnlock()
			if conn != nil {
				continue
			}

			newConn, err := net.DialTimeout("tcp", te.address, 10*time.Second)
			if err != nil {
				continue
			}
			te.installConn(newConn)
		}
	}
}

// installConn swaps in a new connection, drops any old one, starts the read
// pump and notifies the session listener.
func (te *TCPEndpoint) installConn(conn net.Conn) {
	te.connLock.Lock()
	hadConn := te.conn != nil
	if te.conn != nil {
		te.conn.Close()
		te.stats.disconnects.Add(1)
	}
	te.conn = conn
	te.stats.connects.Add(1)
	te.connLock.Unlock()

	// A replaced connection means the previous session is void.
	if hadConn {
		te.notifyReset()
	}

	te.rxLock.Lock()
	te.rx.Reset()
	te.rxLock.Unlock()

	te.wg.Add(1)
	go te.pump(conn)

	te.notifyConfigure()
}

// pump moves bytes from conn into the receive buffer until the connection
// dies or is replaced.
func (te *TCPEndpoint) pump(conn net.Conn) {
	defer te.wg.Done()

	buf := make([]byte, 512)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			te.rxLock.Lock()
			te.rx.Write(buf[:n])
			te.rxLock.Unlock()
			te.stats.bytesReceived.Add(uint64(n))
		}
		if err != nil {
			te.dropConn(conn)
			return
		}
	}
}

// dropConn clears the current connection if it is still the given one.
func (te *TCPEndpoint) dropConn(conn net.Conn) {
	te.connLock.Lock()
	current := te.conn == conn
	if current {
		te.conn.Close()
		te.stats.disconnects.Add(1)
		te.conn = nil
	}
	te.connLock.Unlock()

	if current {
		if !te.closed.Load() {
			te.stats.readErrors.Add(1)
		}
		te.notifyReset()
	}
}

// RxReady implements Endpoint.
func (te *TCPEndpoint) RxReady() int {
	te.rxLock.Lock()
	defer te.rxLock.Unlock()
	return te.rx.Len()
}

// TxReady implements Endpoint.
func (te *TCPEndpoint) TxReady() bool {
	te.connLock.RLock()
	defer te.connLock.RUnlock()
	return te.conn != nil
}

// Read implements Endpoint.
func (te *TCPEndpoint) Read(p []byte) (int, error) {
	te.rxLock.Lock()
	defer te.rxLock.Unlock()

	if te.rx.Len() == 0 {
		return 0, nil
	}
	n, _ := te.rx.Read(p)
	return n, nil
}

// Write implements Endpoint.
func (te *TCPEndpoint) Write(p []byte) error {
	te.connLock.RLock()
	conn := te.conn
	te.connLock.RUnlock()

	if conn == nil {
		te.stats.writeErrors.Add(1)
		return fmt.Errorf("no connection")
	}

	if te.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(te.writeTimeout))
	}

	if _, err := conn.Write(p); err != nil {
		te.stats.writeErrors.Add(1)
		te.dropConn(conn)
		return fmt.Errorf("tcp write: %w", err)
	}

	te.stats.bytesSent.Add(uint64(len(p)))
	return nil
}

// Close implements Endpoint.
func (te *TCPEndpoint) Close() error {
	if !te.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	// Cancel context to stop all goroutines
	te.cancel()

	// Close listener if server
	if te.listener != nil {
		te.listener.Close()
	}

	// Close connection
	te.connLock.Lock()
	if te.conn != nil {
		te.conn.Close()
		te.stats.disconnects.Add(1)
		te.conn = nil
	}
	te.connLock.Unlock()

	// Wait for goroutines to finish
	te.wg.Wait()

	return nil
}

// SetStateListener implements Endpoint.
func (te *TCPEndpoint) SetStateListener(l StateListener) {
	te.stateListenerLock.Lock()
	te.stateListener = l
	te.stateListenerLock.Unlock()

	if l != nil && te.TxReady() {
		l.Configure()
	}
}

// Statistics implements Endpoint.
func (te *TCPEndpoint) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     te.stats.bytesSent.Load(),
		BytesReceived: te.stats.bytesReceived.Load(),
		WriteErrors:   te.stats.writeErrors.Load(),
		ReadErrors:    te.stats.readErrors.Load(),
		Connects:      te.stats.connects.Load(),
		Disconnects:   te.stats.disconnects.Load(),
	}
}

// Addr returns the listen address in server mode, nil otherwise. Useful when
// listening on port 0.
func (te *TCPEndpoint) Addr() net.Addr {
	if te.listener != nil {
		return te.listener.Addr()
	}
	return nil
}

// LocalAddr returns the local address of the connection
func (te *TCPEndpoint) LocalAddr() net.Addr {
	te.connLock.RLock()
	defer te.connLock.RUnlock()
	if te.conn != nil {
		return te.conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the connection
func (te *TCPEndpoint) RemoteAddr() net.Addr {
	te.connLock.RLock()
	defer te.connLock.RUnlock()
	if te.conn != nil {
		return te.conn.RemoteAddr()
	}
	return nil
}

// notifyConfigure tells the listener the control channel is up
func (te *TCPEndpoint) notifyConfigure() {
	te.stateListenerLock.RLock()
	listener := te.stateListener
	te.stateListenerLock.RUnlock()

	if listener != nil {
		listener.Configure()
	}
}

// notifyReset tells the listener the control channel is gone
func (te *TCPEndpoint) notifyReset() {
	te.stateListenerLock.RLock()
	listener := te.stateListener
	te.stateListenerLock.RUnlock()

	if listener != nil {
		listener.Reset()
	}
}
