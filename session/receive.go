package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/crypto"
	"github.com/opd-ai/seclink/protocol"
)

// receiveLoop decrypts frames until the session stops. Until the access
// code is accepted every frame is a code verdict; afterwards every frame
// is an application message.
func (c *Client[T]) receiveLoop() {
	for c.running.Load() {
		payload, err := c.reader.Read()
		if err != nil {
			c.receiveFailed("read", err)
			return
		}
		c.metrics.FrameReceived(len(payload))

		plain, err := c.open(payload)
		if err != nil {
			c.receiveFailed("decrypt", err)
			return
		}

		if !c.codeChecked.Load() {
			var verdict protocol.CodeCheckMessage
			if err := c.codec.Unmarshal(plain, &verdict); err != nil {
				c.receiveFailed("decode", fmt.Errorf("code verdict: %w", err))
				return
			}
			c.evaluateCode(verdict.IsCodeCorrect)
			continue
		}

		var model T
		if err := c.codec.Unmarshal(plain, &model); err != nil {
			c.receiveFailed("decode", err)
			return
		}
		if cb := c.handlers().onData; cb != nil {
			cb(model)
		}
	}
}

func (c *Client[T]) open(payload []byte) ([]byte, error) {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return crypto.DecryptSymmetric(payload, c.aesKey)
}

func (c *Client[T]) evaluateCode(correct bool) {
	logrus.WithFields(logrus.Fields{
		"function":   "evaluateCode",
		"session_id": c.id,
		"accepted":   correct,
	}).Info("Access code evaluated")

	if correct {
		c.codeChecked.Store(true)
	}
	c.metrics.CodeEvaluated(correct)

	if cb := c.handlers().onCode; cb != nil {
		cb(correct)
	}
	c.notifyState()
}

// receiveFailed reports a receive error unless the session is already
// being shut down on purpose.
func (c *Client[T]) receiveFailed(op string, err error) {
	if !c.running.Load() {
		logrus.WithFields(logrus.Fields{
			"function":   "receiveLoop",
			"session_id": c.id,
			"error":      err.Error(),
		}).Debug("Receive stopped by disconnect")
		return
	}
	c.report(protocol.KindReceive, op, err)
}
