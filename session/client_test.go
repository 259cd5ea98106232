package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/limits"
	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
	"github.com/opd-ai/seclink/transport"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// connected returns a running client whose server side has been accepted.
func connected(t *testing.T, opts *Options) (*Client[chatMessage], *recorder[chatMessage], *serverConn) {
	t.Helper()
	srv := newFakeServer(t)
	accepted := srv.accept()

	c, err := New[chatMessage](srv.address(), opts)
	require.NoError(t, err)
	r := record(c)
	t.Cleanup(c.Disconnect)

	require.NoError(t, c.Connect(testContext(t)))
	return c, r, awaitConn(t, accepted)
}

// ready returns a client that completed the handshake and had its code
// accepted.
func ready(t *testing.T) (*Client[chatMessage], *recorder[chatMessage], *serverConn) {
	t.Helper()
	c, r, sc := connected(t, nil)
	sc.handshake()
	require.NoError(t, c.WaitForHandshake(testContext(t)))

	c.SendCode("1234")
	var code protocol.CodeCheckMessage
	sc.readSealed(&code)
	sc.sendSealed(protocol.CodeCheckMessage{IsCodeCorrect: true})
	require.True(t, awaitValue(t, r.codeCh, "code verdict"))
	return c, r, sc
}

func TestStateCallbacksEndWithDisconnected(t *testing.T) {
	for i := 0; i < 20; i++ {
		c, r, sc := connected(t, nil)
		sc.sendHello()
		go c.Disconnect()
		awaitDone(t, c)

		history := r.stateHistory()
		require.NotEmpty(t, history)
		assert.Equal(t, StateConnected, history[0], "run %d: %v", i, history)
		assert.Equal(t, StateDisconnected, history[len(history)-1], "run %d: %v", i, history)
		for _, s := range history[:len(history)-1] {
			assert.NotEqual(t, StateDisconnected, s, "run %d: %v", i, history)
		}
	}
}

func TestStateCallbackMayDisconnect(t *testing.T) {
	c, _, sc := connected(t, nil)

	var (
		mu     sync.Mutex
		events []string
	)
	c.OnStateChange(func(s State) {
		mu.Lock()
		events = append(events, s.String())
		mu.Unlock()
		if s == StateHandshakeComplete {
			c.Disconnect()
			mu.Lock()
			events = append(events, "disconnect returned")
			mu.Unlock()
		}
	})

	sc.handshake()
	awaitDone(t, c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"handshake_complete", "disconnect returned", "disconnected"}, events)
}

func TestNewRejectsInvalidAddress(t *testing.T) {
	_, err := New[chatMessage](protocol.EndpointAddress{IP: "", Port: 80}, nil)
	assert.Error(t, err)

	_, err = New[chatMessage](protocol.EndpointAddress{IP: "127.0.0.1", Port: 0}, nil)
	assert.Error(t, err)
}

func TestNewClientInitialState(t *testing.T) {
	c, err := New[chatMessage](protocol.EndpointAddress{IP: "127.0.0.1", Port: 9000}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID())
	assert.False(t, c.IsRunning())
	assert.False(t, c.IsHandshakeDone())
	assert.False(t, c.IsCodeChecked())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.ServerFingerprint())
	assert.Len(t, c.aesKey, 32)
}

func TestConnectFailureIsReturned(t *testing.T) {
	c, err := New[chatMessage](closedPortAddress(t), &Options{ConnectTimeout: time.Second})
	require.NoError(t, err)
	r := record(c)

	err = c.Connect(testContext(t))
	require.Error(t, err)

	kind, ok := protocol.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, protocol.KindConnection, kind)
	assert.False(t, c.IsRunning())
	assert.Empty(t, r.errors(), "connection failures are returned, not reported")
}

func TestConnectTwice(t *testing.T) {
	c, _, _ := connected(t, nil)
	assert.ErrorIs(t, c.Connect(testContext(t)), ErrAlreadyConnected)
}

func TestSessionLifecycle(t *testing.T) {
	c, r, sc := connected(t, nil)
	assert.True(t, c.IsRunning())
	assert.Equal(t, StateConnected, c.State())

	sc.handshake()
	require.NoError(t, c.WaitForHandshake(testContext(t)))
	assert.True(t, c.IsHandshakeDone())
	assert.Equal(t, crypto.Fingerprint(&crypto.RSAPublicKey{PublicKey: &sc.priv.PublicKey}), c.ServerFingerprint())
	assert.Equal(t, []byte(c.aesKey), []byte(sc.aesKey))

	c.SendCode("1234")
	var code protocol.CodeCheckMessage
	sc.readSealed(&code)
	assert.Equal(t, "1234", code.Code)

	sc.sendSealed(protocol.CodeCheckMessage{IsCodeCorrect: true})
	assert.True(t, awaitValue(t, r.codeCh, "code verdict"))
	awaitState(t, r, StateReady)
	assert.True(t, c.IsCodeChecked())

	c.Send(chatMessage{Text: "hello"})
	var got chatMessage
	sc.readSealed(&got)
	assert.Equal(t, "hello", got.Text)

	sc.sendSealed(chatMessage{Text: "world"})
	assert.Equal(t, chatMessage{Text: "world"}, awaitValue(t, r.dataCh, "data"))

	c.Disconnect()
	awaitDone(t, c)

	assert.Equal(t, []State{StateConnected, StateHandshakeComplete, StateReady, StateDisconnected}, r.stateHistory())
	assert.Empty(t, r.errors())
	assert.False(t, c.IsRunning())
}

func TestSendBeforeConnect(t *testing.T) {
	c, err := New[chatMessage](protocol.EndpointAddress{IP: "127.0.0.1", Port: 9000}, nil)
	require.NoError(t, err)
	r := record(c)

	c.Send(chatMessage{Text: "early"})
	c.SendCode("1234")

	errs := r.errors()
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, protocol.KindSend, e.Kind)
		assert.ErrorIs(t, e, protocol.ErrProtocolState)
		assert.Contains(t, e.Error(), "handshake not complete")
	}
}

func TestSendBeforeHandshakeWritesNothing(t *testing.T) {
	c, r, sc := connected(t, nil)

	c.SendCode("1234")
	c.Send(chatMessage{Text: "early"})

	sc.expectSilence(200 * time.Millisecond)
	errs := r.errors()
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, protocol.KindSend, e.Kind)
		assert.Contains(t, e.Error(), "handshake not complete")
	}
}

func TestSendGatedUntilCodeAccepted(t *testing.T) {
	c, r, sc := connected(t, nil)
	sc.handshake()
	require.NoError(t, c.WaitForHandshake(testContext(t)))

	c.Send(chatMessage{Text: "too soon"})
	e := awaitValue(t, r.errCh, "gate error")
	assert.Equal(t, protocol.KindSend, e.Kind)
	assert.ErrorIs(t, e, protocol.ErrProtocolState)
	assert.Contains(t, e.Error(), "code not yet accepted")
	sc.expectSilence(200 * time.Millisecond)

	c.SendCode("0000")
	var code protocol.CodeCheckMessage
	sc.readSealed(&code)
	assert.Equal(t, "0000", code.Code)
}

func TestRejectedCodeKeepsSessionOpen(t *testing.T) {
	c, r, sc := connected(t, nil)
	sc.handshake()
	require.NoError(t, c.WaitForHandshake(testContext(t)))

	c.SendCode("wrong")
	var code protocol.CodeCheckMessage
	sc.readSealed(&code)
	sc.sendSealed(protocol.CodeCheckMessage{IsCodeCorrect: false})

	assert.False(t, awaitValue(t, r.codeCh, "rejection"))
	assert.False(t, c.IsCodeChecked())
	assert.True(t, c.IsRunning())
	assert.Equal(t, StateHandshakeComplete, c.State())

	c.SendCode("right")
	sc.readSealed(&code)
	assert.Equal(t, "right", code.Code)
	sc.sendSealed(protocol.CodeCheckMessage{IsCodeCorrect: true})

	assert.True(t, awaitValue(t, r.codeCh, "acceptance"))
	assert.True(t, c.IsCodeChecked())
	assert.Equal(t, StateReady, c.State())
	assert.Empty(t, r.errors())
}

func TestWaitForHandshakeReturnsWhenDone(t *testing.T) {
	c, _, _ := ready(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.WaitForHandshake(ctx), "completed handshake returns immediately")
}

func TestWaitForHandshakeSingleWaiter(t *testing.T) {
	c, r, sc := connected(t, nil)

	ctx := testContext(t)
	first := make(chan error, 1)
	go func() { first <- c.WaitForHandshake(ctx) }()

	require.Eventually(t, func() bool {
		c.connMu.Lock()
		defer c.connMu.Unlock()
		return c.waiting
	}, testTimeout, 5*time.Millisecond)

	err := c.WaitForHandshake(ctx)
	require.ErrorIs(t, err, ErrWaiterRegistered)

	e := awaitValue(t, r.errCh, "waiter error")
	assert.Equal(t, protocol.KindHandshake, e.Kind)
	assert.ErrorIs(t, e, ErrWaiterRegistered)

	sc.handshake()
	assert.NoError(t, awaitValue(t, first, "first waiter"))
}

func TestWaitForHandshakeContextCancelled(t *testing.T) {
	c, _, _ := connected(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitForHandshake(ctx), context.DeadlineExceeded)

	// The slot is released for the next waiter.
	c.connMu.Lock()
	assert.False(t, c.waiting)
	c.connMu.Unlock()
}

func TestWaitForHandshakeSessionEnds(t *testing.T) {
	c, r, sc := connected(t, nil)

	ctx := testContext(t)
	waitErr := make(chan error, 1)
	go func() { waitErr <- c.WaitForHandshake(ctx) }()

	require.NoError(t, sc.conn.Close())

	assert.ErrorIs(t, awaitValue(t, waitErr, "waiter"), ErrClientClosed)
	e := awaitValue(t, r.errCh, "handshake error")
	assert.Equal(t, protocol.KindHandshake, e.Kind)
	awaitDone(t, c)
	assert.False(t, c.IsRunning())
}

func TestHandshakeWithoutKeyMaterial(t *testing.T) {
	c, r, sc := connected(t, nil)

	sc.sendPlain(protocol.HandshakeMessage{})

	e := awaitValue(t, r.errCh, "handshake error")
	assert.Equal(t, protocol.KindHandshake, e.Kind)
	assert.ErrorIs(t, e, ErrNoKeyMaterial)

	awaitDone(t, c)
	assert.False(t, c.IsRunning())
	assert.False(t, c.IsHandshakeDone())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestHandshakeWithWeakKey(t *testing.T) {
	c, r, sc := connected(t, nil)

	weak := make([]byte, 64)
	for i := range weak {
		weak[i] = 0xff
	}
	sc.sendPlain(protocol.HandshakeMessage{RSAKeyInformation: &protocol.RSAKeyInfo{
		Exponent: []byte{0x01, 0x00, 0x01},
		Modulus:  weak,
	}})

	e := awaitValue(t, r.errCh, "handshake error")
	assert.Equal(t, protocol.KindHandshake, e.Kind)
	assert.ErrorIs(t, e, crypto.ErrInvalidPublicKey)
	awaitDone(t, c)
}

func TestHandshakeMalformedHello(t *testing.T) {
	c, r, sc := connected(t, nil)

	require.NoError(t, transport.WriteFrame(sc.conn, []byte("not json")))

	e := awaitValue(t, r.errCh, "handshake error")
	assert.Equal(t, protocol.KindHandshake, e.Kind)
	awaitDone(t, c)
}

func TestUndecryptableFrameEndsSession(t *testing.T) {
	c, r, sc := ready(t)

	require.NoError(t, transport.WriteFrame(sc.conn, []byte{1, 2, 3, 4, 5}))

	e := awaitValue(t, r.errCh, "receive error")
	assert.Equal(t, protocol.KindReceive, e.Kind)
	assert.ErrorIs(t, e, crypto.ErrCryptoFailure)
	awaitDone(t, c)
	assert.False(t, c.IsRunning())
}

func TestServerCloseReportsReceiveFailure(t *testing.T) {
	c, r, sc := ready(t)

	require.NoError(t, sc.conn.Close())

	e := awaitValue(t, r.errCh, "receive error")
	assert.Equal(t, protocol.KindReceive, e.Kind)
	awaitDone(t, c)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, r, _ := ready(t)

	c.Disconnect()
	c.Disconnect()
	awaitDone(t, c)

	assert.False(t, c.IsRunning())
	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, r.errors(), "intentional shutdown reports nothing")

	assert.ErrorIs(t, c.Connect(testContext(t)), ErrClientClosed)
}

func TestSendAfterDisconnect(t *testing.T) {
	c, r, _ := ready(t)
	c.Disconnect()
	awaitDone(t, c)

	c.Send(chatMessage{Text: "late"})
	e := awaitValue(t, r.errCh, "send error")
	assert.Equal(t, protocol.KindSend, e.Kind)
	assert.ErrorIs(t, e, ErrNotRunning)
}

func TestDisconnectBeforeConnectIsNoop(t *testing.T) {
	c, err := New[chatMessage](protocol.EndpointAddress{IP: "127.0.0.1", Port: 9000}, nil)
	require.NoError(t, err)
	r := record(c)

	c.Disconnect()
	assert.Empty(t, r.errors())
	assert.Empty(t, r.stateHistory())
}

func TestSessionKeyWipedOnEnd(t *testing.T) {
	c, _, _ := ready(t)
	c.Disconnect()
	awaitDone(t, c)

	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	assert.Equal(t, make([]byte, len(c.aesKey)), []byte(c.aesKey))
}

func TestSessionMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c, r, sc := connected(t, &Options{Metrics: m})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))

	sc.handshake()
	require.NoError(t, c.WaitForHandshake(testContext(t)))
	c.SendCode("1234")
	var code protocol.CodeCheckMessage
	sc.readSealed(&code)
	sc.sendSealed(protocol.CodeCheckMessage{IsCodeCorrect: true})
	require.True(t, awaitValue(t, r.codeCh, "code verdict"))

	c.Disconnect()
	awaitDone(t, c)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Handshakes.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CodeChecks.WithLabelValues("accepted")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesSent))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesReceived))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SessionsActive))
}

func TestWriteFailureIsReported(t *testing.T) {
	c, r, _ := ready(t)

	// Closing the socket underneath the client makes the next write fail.
	require.NoError(t, c.conn.Close())
	c.Send(chatMessage{Text: "lost"})

	deadline := time.After(testTimeout)
	for {
		select {
		case e := <-r.errCh:
			if e.Kind == protocol.KindSend {
				assert.False(t, errors.Is(e, protocol.ErrProtocolState))
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for send failure")
		}
	}
}

func TestOversizedMessageRejectedBeforeWrite(t *testing.T) {
	c, r, sc := ready(t)

	huge := make([]byte, limits.MaxFrameSize)
	for i := range huge {
		huge[i] = 'a'
	}
	c.Send(chatMessage{Text: string(huge)})

	e := awaitValue(t, r.errCh, "size error")
	assert.Equal(t, protocol.KindSend, e.Kind)
	assert.ErrorIs(t, e, limits.ErrMessageTooLarge)
	sc.expectSilence(100 * time.Millisecond)
	assert.True(t, c.IsRunning())
}
