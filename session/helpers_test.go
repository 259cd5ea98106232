package session

import (
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/protocol"
	"github.com/opd-ai/seclink/transport"
)

const testTimeout = 5 * time.Second

type chatMessage struct {
	Text string `json:"text"`
}

var (
	serverKeyOnce sync.Once
	serverKey     *rsa.PrivateKey
)

func testServerKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	serverKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		serverKey = k
	})
	return serverKey
}

// fakeServer plays the server side of the protocol on a loopback listener.
type fakeServer struct {
	t    *testing.T
	ln   net.Listener
	priv *rsa.PrivateKey
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return &fakeServer{t: t, ln: ln, priv: testServerKey(t)}
}

func (s *fakeServer) address() protocol.EndpointAddress {
	addr := s.ln.Addr().(*net.TCPAddr)
	return protocol.EndpointAddress{IP: addr.IP.String(), Port: addr.Port}
}

// accept waits for the client connection in the background.
func (s *fakeServer) accept() <-chan *serverConn {
	ch := make(chan *serverConn, 1)
	go func() {
		conn, err := s.ln.Accept()
		if err != nil {
			close(ch)
			return
		}
		ch <- &serverConn{t: s.t, conn: conn, priv: s.priv}
	}()
	return ch
}

func awaitConn(t *testing.T, ch <-chan *serverConn) *serverConn {
	t.Helper()
	select {
	case sc, ok := <-ch:
		require.True(t, ok, "accept failed")
		t.Cleanup(func() { sc.conn.Close() })
		return sc
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

type serverConn struct {
	t      *testing.T
	conn   net.Conn
	priv   *rsa.PrivateKey
	aesKey crypto.AESKey
}

func (sc *serverConn) sendHello() {
	sc.t.Helper()
	hello := protocol.HandshakeMessage{RSAKeyInformation: &protocol.RSAKeyInfo{
		Exponent: big.NewInt(int64(sc.priv.E)).Bytes(),
		Modulus:  sc.priv.N.Bytes(),
	}}
	sc.sendPlain(hello)
}

func (sc *serverConn) sendPlain(v any) {
	sc.t.Helper()
	data, err := protocol.DefaultCodec.Marshal(v)
	require.NoError(sc.t, err)
	require.NoError(sc.t, transport.WriteFrame(sc.conn, data))
}

func (sc *serverConn) readFrame() []byte {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	payload, err := transport.ReadFrame(sc.conn)
	require.NoError(sc.t, err)
	return payload
}

// readKey reads the client handshake and keeps the session key.
func (sc *serverConn) readKey() {
	sc.t.Helper()
	sealed := sc.readFrame()
	plain, err := sc.priv.Decrypt(rand.Reader, sealed, &rsa.OAEPOptions{Hash: stdcrypto.SHA512, MGFHash: stdcrypto.SHA512})
	require.NoError(sc.t, err)

	var msg protocol.HandshakeMessage
	require.NoError(sc.t, protocol.DefaultCodec.Unmarshal(plain, &msg))
	require.Nil(sc.t, msg.RSAKeyInformation)
	require.Len(sc.t, msg.AESKey, 32)
	sc.aesKey = crypto.AESKey(msg.AESKey)
}

// handshake runs the full server side of the handshake.
func (sc *serverConn) handshake() {
	sc.t.Helper()
	sc.sendHello()
	sc.readKey()
}

func (sc *serverConn) sendSealed(v any) {
	sc.t.Helper()
	data, err := protocol.DefaultCodec.Marshal(v)
	require.NoError(sc.t, err)
	sealed, err := crypto.Encrypt(data, sc.aesKey)
	require.NoError(sc.t, err)
	require.NoError(sc.t, transport.WriteFrame(sc.conn, sealed))
}

func (sc *serverConn) readSealed(v any) {
	sc.t.Helper()
	plain, err := crypto.DecryptSymmetric(sc.readFrame(), sc.aesKey)
	require.NoError(sc.t, err)
	require.NoError(sc.t, protocol.DefaultCodec.Unmarshal(plain, v))
}

// expectSilence asserts nothing arrives from the client within d.
func (sc *serverConn) expectSilence(d time.Duration) {
	sc.t.Helper()
	require.NoError(sc.t, sc.conn.SetReadDeadline(time.Now().Add(d)))
	buf := make([]byte, 1)
	_, err := sc.conn.Read(buf)
	var netErr net.Error
	require.ErrorAs(sc.t, err, &netErr)
	require.True(sc.t, netErr.Timeout(), "expected read timeout, got %v", err)
}

// recorder collects callbacks from a client.
type recorder[T any] struct {
	mu     sync.Mutex
	errs   []*protocol.Error
	states []State

	errCh   chan *protocol.Error
	codeCh  chan bool
	dataCh  chan T
	stateCh chan State
}

func record[T any](c *Client[T]) *recorder[T] {
	r := &recorder[T]{
		errCh:   make(chan *protocol.Error, 16),
		codeCh:  make(chan bool, 16),
		dataCh:  make(chan T, 16),
		stateCh: make(chan State, 16),
	}
	c.OnError(func(e *protocol.Error) {
		r.mu.Lock()
		r.errs = append(r.errs, e)
		r.mu.Unlock()
		r.errCh <- e
	})
	c.OnCodeEvaluation(func(ok bool) { r.codeCh <- ok })
	c.OnData(func(m T) { r.dataCh <- m })
	c.OnStateChange(func(s State) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
		r.stateCh <- s
	})
	return r
}

func (r *recorder[T]) errors() []*protocol.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Error(nil), r.errs...)
}

func (r *recorder[T]) stateHistory() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func awaitValue[V any](t *testing.T, ch chan V, what string) V {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		var zero V
		t.Fatalf("timed out waiting for %s", what)
		return zero
	}
}

func awaitState[T any](t *testing.T, r *recorder[T], want State) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		select {
		case s := <-r.stateCh:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func awaitDone[T any](t *testing.T, c *Client[T]) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for session end")
	}
}

func closedPortAddress(t *testing.T) protocol.EndpointAddress {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return protocol.EndpointAddress{IP: "127.0.0.1", Port: port}
}
