package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
	"github.com/opd-ai/seclink/transport"
)

// Client is a secure session with one server. T is the application message
// type; values of T are exchanged only after the access code is accepted.
//
// A Client is single use: once it disconnects it cannot connect again.
type Client[T any] struct {
	id      string
	address protocol.EndpointAddress
	codec   protocol.Codec
	metrics *metrics.Metrics

	connectTimeout time.Duration
	writeTimeout   time.Duration

	// connMu guards connection setup and the handshake waiter slot.
	connMu  sync.Mutex
	started bool
	waiting bool

	conn   net.Conn
	reader *transport.FrameReader
	writer *transport.FrameWriter

	// keyMu guards aesKey against the wipe at session end.
	keyMu     sync.RWMutex
	aesKey    crypto.AESKey
	serverKey atomic.Pointer[crypto.RSAPublicKey]

	running       atomic.Bool
	handshakeDone atomic.Bool
	codeChecked   atomic.Bool

	handshakeCh chan struct{}
	doneCh      chan struct{}

	stateMu       sync.Mutex
	stateIdle     *sync.Cond
	lastState     State
	pendingStates []State
	dispatching   bool

	handlerMu  sync.RWMutex
	handlerSet handlerSet[T]
}

// New creates a client for address. The session key is generated here and
// never changes for the life of the client.
func New[T any](address protocol.EndpointAddress, opts *Options) (*Client[T], error) {
	if !address.IsValid() {
		return nil, fmt.Errorf("invalid server address %q", address.String())
	}

	o := opts.withDefaults()

	key, err := crypto.GenerateAESKey()
	if err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	c := &Client[T]{
		id:             uuid.NewString(),
		address:        address,
		codec:          o.Codec,
		metrics:        o.Metrics,
		connectTimeout: o.ConnectTimeout,
		writeTimeout:   o.WriteTimeout,
		aesKey:         key,
		handshakeCh:    make(chan struct{}),
		doneCh:         make(chan struct{}),
		lastState:      StateDisconnected,
	}
	c.stateIdle = sync.NewCond(&c.stateMu)

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"session_id": c.id,
		"address":    address.String(),
	}).Debug("Created session client")

	return c, nil
}

// ID returns the identifier used to correlate this session in logs.
func (c *Client[T]) ID() string { return c.id }

// Address returns the server address.
func (c *Client[T]) Address() protocol.EndpointAddress { return c.address }

// IsRunning reports whether the socket is open and the receive loop active.
func (c *Client[T]) IsRunning() bool { return c.running.Load() }

// IsHandshakeDone reports whether the session key reached the server.
func (c *Client[T]) IsHandshakeDone() bool { return c.handshakeDone.Load() }

// IsCodeChecked reports whether the server accepted an access code.
func (c *Client[T]) IsCodeChecked() bool { return c.codeChecked.Load() }

// ServerFingerprint returns the fingerprint of the server's public key, or
// an empty string before the handshake.
func (c *Client[T]) ServerFingerprint() string {
	return crypto.Fingerprint(c.serverKey.Load())
}

// Done returns a channel closed when the receive goroutine exits.
func (c *Client[T]) Done() <-chan struct{} { return c.doneCh }

// Connect opens the TCP connection and starts the receive goroutine, which
// performs the handshake and then delivers messages. Connection failures
// are returned, not reported.
func (c *Client[T]) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.started {
		c.connMu.Unlock()
		if c.running.Load() {
			return ErrAlreadyConnected
		}
		return ErrClientClosed
	}
	c.started = true
	c.connMu.Unlock()

	addr := c.address.String()
	logger := logrus.WithFields(logrus.Fields{
		"function":   "Connect",
		"session_id": c.id,
		"address":    addr,
	})

	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.connMu.Lock()
		c.started = false
		c.connMu.Unlock()

		logger.WithError(err).Warn("Failed to connect")
		c.metrics.ErrorReported(protocol.KindConnection.String())
		return protocol.NewError(protocol.KindConnection, "connect", addr, err)
	}

	c.conn = conn
	c.reader = transport.NewFrameReader(conn)
	c.writer = transport.NewFrameWriter(conn, c.writeTimeout)
	c.running.Store(true)
	c.metrics.SessionStarted()

	logger.WithField("local_addr", conn.LocalAddr().String()).Info("Connected to server")
	c.notifyState()

	go c.run(time.Now())
	return nil
}

// Disconnect closes the socket and stops the session. It is idempotent and
// a no-op on a client that is not running.
func (c *Client[T]) Disconnect() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.metrics.SessionStopped()

	logrus.WithFields(logrus.Fields{
		"function":   "Disconnect",
		"session_id": c.id,
	}).Info("Disconnecting")

	if err := c.conn.Close(); err != nil {
		c.report(protocol.KindDisconnect, "disconnect", err)
	}
	c.notifyState()
}

// run is the receive goroutine: handshake first, then the message loop.
func (c *Client[T]) run(started time.Time) {
	defer c.finish()

	if err := c.handshake(); err != nil {
		c.metrics.HandshakeCompleted(false, time.Since(started))
		if c.running.Load() {
			c.report(protocol.KindHandshake, "handshake", err)
		}
		return
	}
	c.metrics.HandshakeCompleted(true, time.Since(started))

	c.receiveLoop()
}

// finish closes the socket if the session ended on its own, wipes the
// session key and releases anyone waiting on Done.
func (c *Client[T]) finish() {
	if c.running.CompareAndSwap(true, false) {
		c.metrics.SessionStopped()
		if err := c.conn.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "finish",
				"session_id": c.id,
				"error":      err.Error(),
			}).Debug("Close after session end failed")
		}
	}

	c.keyMu.Lock()
	crypto.WipeAESKey(c.aesKey)
	c.keyMu.Unlock()

	c.notifyState()
	c.flushStates()
	close(c.doneCh)

	logrus.WithFields(logrus.Fields{
		"function":   "finish",
		"session_id": c.id,
	}).Info("Session ended")
}
