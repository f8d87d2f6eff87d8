package channel

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICEndpoint implements Endpoint over a QUIC connection carrying a single
// bidirectional stream.
type QUICEndpoint struct {
	// Connection
	connection quic.Connection
	stream     quic.Stream
	connLock   sync.RWMutex
	streamLock sync.RWMutex

	// Receive buffer filled by the per-stream pump
	rxLock sync.Mutex
	rx     bytes.Buffer

	// Configuration
	address        string
	isServer       bool
	listener       *quic.Listener
	reconnectDelay time.Duration
	writeTimeout   time.Duration
	tlsConfig      *tls.Config

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

// QUICEndpointConfig configures a QUIC endpoint
type QUICEndpointConfig struct {
	Address        string        // "host:port" format
	IsServer       bool          // true = listen, false = connect
	ReconnectDelay time.Duration // Delay between reconnection attempts (client only)
	WriteTimeout   time.Duration // Write timeout (0 = no timeout)
	TLSConfig      *tls.Config   // Optional TLS config (if nil, will generate self-signed cert)
}

// NewQUICEndpoint creates a new QUIC endpoint
func NewQUICEndpoint(config QUICEndpointConfig) (*QUICEndpoint, error) {
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

	// Generate TLS config if not provided
	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		var err error
		tlsConfig, err = generateTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to generate TLS config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	qe := &QUICEndpoint{
		address:        config.Address,
		isServer:       config.IsServer,
		reconnectDelay: config.ReconnectDelay,
		writeTimeout:   config.WriteTimeout,
		tlsConfig:      tlsConfig,
		ctx:            ctx,
		cancel:         cancel,
	}

	if config.IsServer {
		if err := qe.startServer(); err != nil {
			cancel()
			return nil, err
		}
	} else {
		if err := qe.connect(); err != nil {
			cancel()
			return nil, err
		}
	}

	return qe, nil
}

// generateTLSConfig generates a self-signed certificate for QUIC
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		NextProtos:         []string{"fwagent-quic"},
		InsecureSkipVerify: true, // For self-signed certs
	}, nil
}

// startServer starts listening for incoming QUIC connections
func (qe *QUICEndpoint) startServer() error {
	udpAddr, err := net.ResolveUDPAddr("udp", qe.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s: %w", qe.address, err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", qe.address, err)
	}

	listener, err := quic.Listen(udpConn, qe.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return fmt.Errorf("failed to create QUIC listener: %w", err)
	}

	qe.listener = listener

	// Accept connections in background
	qe.wg.Add(1)
	go qe.acceptLoop()

	return nil
}

// acceptLoop accepts incoming QUIC connections
func (qe *QUICEndpoint) acceptLoop() {
	defer qe.wg.Done()

	for {
		select {
		case <-qe.ctx.Done():
			return
		default:
		}

		conn, err := qe.listener.Accept(qe.ctx)
		if err != nil {
			if qe.closed.Load() {
				return
			}
			continue
		}

		// Close existing connection if any
		qe.connLock.Lock()
		hadConnection := qe.connection != nil
		if qe.connection != nil {
			qe.connection.CloseWithError(0, "new connection")
			qe.stats.disconnects.Add(1)
		}
		qe.connection = conn
		qe.stats.connects.Add(1)
		qe.connLock.Unlock()

		if hadConnection {
			qe.notifyReset()
		}

		// Accept the first stream
		qe.wg.Add(1)
		go qe.acceptStream(conn)
	}
}

// acceptStream accepts the control stream from a new connection
func (qe *QUICEndpoint) acceptStream(conn quic.Connection) {
	defer qe.wg.Done()

	stream, err := conn.AcceptStream(qe.ctx)
	if err != nil {
		return
	}

	qe.installStream(stream)
}

// connect establishes a QUIC connection to the remote server
func (qe *QUICEndpoint) connect() error {
	conn, stream, err := qe.dial()
	if err != nil {
		return err
	}

	qe.connLock.Lock()
	qe.connection = conn
	qe.stats.connects.Add(1)
	qe.connLock.Unlock()

	qe.installStream(stream)

	// Start reconnection handler for clients
	qe.wg.Add(1)
	go qe.reconnectLoop()

	return nil
}

// dial opens a connection and its control stream
func (qe *QUICEndpoint) dial() (quic.Connection, quic.Stream, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve local UDP address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create UDP socket: %w", err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", qe.address)
	if err != nil {
		udpConn.Close()
		return nil, nil, fmt.Errorf("failed to resolve remote address %s: %w", qe.address, err)
	}

	conn, err := quic.Dial(qe.ctx, udpConn, remoteAddr, qe.tlsConfig, nil)
	if err != nil {
		udpConn.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", qe.address, err)
	}

	stream, err := conn.OpenStreamSync(qe.ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		return nil, nil, fmt.Errorf("failed to open stream: %w", err)
	}

	return conn, stream, nil
}

// reconnectLoop handles automatic reconnection for client mode
func (qe *QUICEndpoint) reconnectLoop() {
	defer qe.wg.Done()

	for {
		select {
		case <-qe.ctx.Done():
			return
		case <-time.After(1 * time.Second):
			qe.connLock.RLock()
			conn := qe.connection
			qe.connLock.RUnlock()

			if conn != nil && conn.Context().Err() == nil {
				continue
			}

			// Connection is dead, wait for reconnect delay
			select {
			case <-qe.ctx.Done():
				return
			case <-time.After(qe.reconnectDelay):
			}

			newConn, stream, err := qe.dial()
			if err != nil {
				continue
			}

			qe.connLock.Lock()
			if qe.connection != nil {
				qe.connection.CloseWithError(0, "reconnecting")
			}
			qe.connection = newConn
			qe.stats.connects.Add(1)
			qe.connLock.Unlock()

			qe.installStream(stream)
		}
	}
}

// installStream swaps in a new control stream, starts its pump and notifies
// the session listener.
func (qe *QUICEndpoint) installStream(stream quic.Stream) {
	qe.streamLock.Lock()
	if qe.stream != nil {
		qe.stream.Close()
	}
	qe.stream = stream
	qe.streamLock.Unlock()

	qe.rxLock.Lock()
	qe.rx.Reset()
	qe.rxLock.Unlock()

	qe.wg.Add(1)
	go qe.pump(stream)

	qe.notifyConfigure()
}

// pump moves bytes from stream into the receive buffer until the stream dies
// or is replaced.
func (qe *QUICEndpoint) pump(stream quic.Stream) {
	defer qe.wg.Done()

	buf := make([]byte, 512)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			qe.rxLock.Lock()
			qe.rx.Write(buf[:n])
			qe.rxLock.Unlock()
			qe.stats.bytesReceived.Add(uint64(n))
		}
		if err != nil {
			qe.dropStream(stream)
			return
		}
	}
}

// dropStream clears the current stream if it is still the given one.
func (qe *QUICEndpoint) dropStream(stream quic.Stream) {
	qe.streamLock.Lock()
	current := qe.stream == stream
	if current {
		qe.stream.Close()
		qe.stream = nil
	}
	qe.streamLock.Unlock()

	if current {
		if !qe.closed.Load() {
			qe.stats.readErrors.Add(1)
		}
		qe.notifyReset()
	}
}

// RxReady implements Endpoint.
func (qe *QUICEndpoint) RxReady() int {
	qe.rxLock.Lock()
	defer qe.rxLock.Unlock()
	return qe.rx.Len()
}

// TxReady implements Endpoint.
func (qe *QUICEndpoint) TxReady() bool {
	qe.streamLock.RLock()
	defer qe.streamLock.RUnlock()
	return qe.stream != nil
}

// Read implements Endpoint.
func (qe *QUICEndpoint) Read(p []byte) (int, error) {
	qe.rxLock.Lock()
	defer qe.rxLock.Unlock()

	if qe.rx.Len() == 0 {
		return 0, nil
	}
	n, _ := qe.rx.Read(p)
	return n, nil
}

// Write implements Endpoint.
func (qe *QUICEndpoint) Write(p []byte) error {
	qe.streamLock.RLock()
	stream := qe.stream
	qe.streamLock.RUnlock()

	if stream == nil {
		qe.stats.writeErrors.Add(1)
		return fmt.Errorf("no stream")
	}

	if qe.writeTimeout > 0 {
		stream.SetWriteDeadline(time.Now().Add(qe.writeTimeout))
	}

	if _, err := stream.Write(p); err != nil {
		qe.stats.writeErrors.Add(1)
		qe.dropStream(stream)
		return fmt.Errorf("quic write: %w", err)
	}

	qe.stats.bytesSent.Add(uint64(len(p)))
	return nil
}

// Close implements Endpoint.
func (qe *QUICEndpoint) Close() error {
	if !qe.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	// Cancel context to stop all goroutines
	qe.cancel()

	// Close listener if server
	if qe.listener != nil {
		qe.listener.Close()
	}

	// Close stream
	qe.streamLock.Lock()
	if qe.stream != nil {
		qe.stream.Close()
		qe.stream = nil
	}
	qe.streamLock.Unlock()

	// Close connection
	qe.connLock.Lock()
	if qe.connection != nil {
		qe.connection.CloseWithError(0, "endpoint closed")
		qe.stats.disconnects.Add(1)
		qe.connection = nil
	}
	qe.connLock.Unlock()

	// Wait for goroutines to finish
	qe.wg.Wait()

	return nil
}

// SetStateListener implements Endpoint.
func (qe *QUICEndpoint) SetStateListener(l StateListener) {
	qe.stateListenerLock.Lock()
	qe.stateListener = l
	qe.stateListenerLock.Unlock()

	if l != nil && qe.TxReady() {
		l.Configure()
	}
}

// Statistics implements Endpoint.
func (qe *QUICEndpoint) Statistics() TransportStats {
	return TransportStats{
		BytesSent:     qe.stats.bytesSent.Load(),
		BytesReceived: qe.stats.bytesReceived.Load(),
		WriteErrors:   qe.stats.writeErrors.Load(),
		ReadErrors:    qe.stats.readErrors.Load(),
		Connects:      qe.stats.connects.Load(),
		Disconnects:   qe.stats.disconnects.Load(),
	}
}

// LocalAddr returns the local address of the connection
func (qe *QUICEndpoint) LocalAddr() net.Addr {
	qe.connLock.RLock()
	defer qe.connLock.RUnlock()
	if qe.connection != nil {
		return qe.connection.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address of the connection
func (qe *QUICEndpoint) RemoteAddr() net.Addr {
	qe.connLock.RLock()
	defer qe.connLock.RUnlock()
	if qe.connection != nil {
		return qe.connection.RemoteAddr()
	}
	return nil
}

// notifyConfigure tells the listener the control channel is up
func (qe *QUICEndpoint) notifyConfigure() {
	qe.stateListenerLock.RLock()
	listener := qe.stateListener
	qe.stateListenerLock.RUnlock()

	if listener != nil {
		listener.Configure()
	}
}

// notifyReset tells the listener the control channel is gone
func (qe *QUICEndpoint) notifyReset() {
	qe.stateListenerLock.RLock()
	listener := qe.stateListener
	qe.stateListenerLock.RUnlock()

	if listener != nil {
		listener.Reset()
	}
}
