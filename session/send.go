package session

import (
	"fmt"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/limits"
	"github.com/opd-ai/seclink/protocol"
)

// Send encrypts model under the session key and writes it as one frame.
// Failures are reported through the error handler, never returned.
// Nothing is written before the handshake completes, and application
// messages are refused until the access code is accepted.
func (c *Client[T]) Send(model T) {
	c.send("send", model)
}

// SendCode submits an access code. It is allowed as soon as the handshake
// completes.
func (c *Client[T]) SendCode(code string) {
	c.send("send_code", &protocol.CodeCheckMessage{Code: code})
}

func (c *Client[T]) send(op string, model any) {
	if !c.handshakeDone.Load() {
		c.report(protocol.KindSend, op, &protocol.StateError{Op: "SEND", Reason: "handshake not complete"})
		return
	}
	if !c.codeChecked.Load() && !protocol.IsSetupMessage(model) {
		c.report(protocol.KindSend, op, &protocol.StateError{Op: "SEND", Reason: "code not yet accepted"})
		return
	}
	if !c.running.Load() {
		c.report(protocol.KindSend, op, ErrNotRunning)
		return
	}

	data, err := c.codec.Marshal(model)
	if err != nil {
		c.report(protocol.KindSend, op, err)
		return
	}
	// Padding adds up to one block.
	if err := limits.ValidateMessageSize(data, limits.MaxFrameSize-limits.AESBlockSize); err != nil {
		c.report(protocol.KindSend, op, err)
		return
	}

	sealed, err := c.seal(data)
	if err != nil {
		c.report(protocol.KindSend, op, err)
		return
	}

	if err := c.writeFrame(sealed); err != nil {
		c.report(protocol.KindSend, op, err)
	}
}

// seal encrypts data under the session key unless the key was wiped.
func (c *Client[T]) seal(data []byte) ([]byte, error) {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()

	if !c.running.Load() {
		return nil, ErrNotRunning
	}
	sealed, err := crypto.Encrypt(data, c.aesKey)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}
	return sealed, nil
}

func (c *Client[T]) writeFrame(payload []byte) error {
	if err := c.writer.Write(payload); err != nil {
		return err
	}
	c.metrics.FrameSent(len(payload))
	return nil
}
