package session

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/protocol"
)

// handshake reads the server's plaintext public key and answers with the
// session key sealed under it.
func (c *Client[T]) handshake() error {
	payload, err := c.reader.Read()
	if err != nil {
		return fmt.Errorf("read server handshake: %w", err)
	}
	c.metrics.FrameReceived(len(payload))

	var hello protocol.HandshakeMessage
	if err := c.codec.Unmarshal(payload, &hello); err != nil {
		return fmt.Errorf("decode server handshake: %w", err)
	}
	if hello.RSAKeyInformation == nil {
		return ErrNoKeyMaterial
	}

	serverKey, err := crypto.PublicKeyFromComponents(hello.RSAKeyInformation.Exponent, hello.RSAKeyInformation.Modulus)
	if err != nil {
		return err
	}
	c.serverKey.Store(serverKey)

	c.keyMu.RLock()
	reply, err := c.codec.Marshal(&protocol.HandshakeMessage{AESKey: c.aesKey})
	c.keyMu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode client handshake: %w", err)
	}
	defer crypto.ZeroBytes(reply)

	sealed, err := crypto.Encrypt(reply, serverKey)
	if err != nil {
		return fmt.Errorf("seal client handshake: %w", err)
	}
	if err := c.writeFrame(sealed); err != nil {
		return fmt.Errorf("write client handshake: %w", err)
	}

	c.handshakeDone.Store(true)
	close(c.handshakeCh)

	logrus.WithFields(logrus.Fields{
		"function":    "handshake",
		"session_id":  c.id,
		"fingerprint": crypto.Fingerprint(serverKey),
	}).Info("Handshake complete")

	c.notifyState()
	return nil
}

// WaitForHandshake blocks until the handshake completes, the session ends,
// or ctx is done. It returns at once when the handshake already completed.
// Only one caller may wait at a time; a concurrent second caller gets
// ErrWaiterRegistered, which is also reported.
func (c *Client[T]) WaitForHandshake(ctx context.Context) error {
	if c.handshakeDone.Load() {
		return nil
	}

	c.connMu.Lock()
	if c.handshakeDone.Load() {
		c.connMu.Unlock()
		return nil
	}
	if c.waiting {
		c.connMu.Unlock()
		return c.report(protocol.KindHandshake, "wait", ErrWaiterRegistered)
	}
	c.waiting = true
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.waiting = false
		c.connMu.Unlock()
	}()

	select {
	case <-c.handshakeCh:
		return nil
	case <-c.doneCh:
		if c.handshakeDone.Load() {
			return nil
		}
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
