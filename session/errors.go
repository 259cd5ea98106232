package session

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/protocol"
)

var (
	// ErrNotRunning is reported when sending on a client that is not running.
	ErrNotRunning = errors.New("client is not running")

	// ErrAlreadyConnected is returned by Connect on a running client.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrClientClosed is returned when a finished client is reused, or when
	// a handshake wait is cut short by the end of the session.
	ErrClientClosed = errors.New("client closed")

	// ErrNoKeyMaterial is reported when the server handshake carries no key.
	ErrNoKeyMaterial = errors.New("server handshake carries no key material")

	// ErrWaiterRegistered is reported when a second caller waits for the
	// handshake while another wait is in progress.
	ErrWaiterRegistered = errors.New("handshake waiter already registered")
)

// report logs the failure, counts it and hands it to the error handler.
func (c *Client[T]) report(kind protocol.ErrorKind, op string, err error) *protocol.Error {
	e := protocol.NewError(kind, op, c.address.String(), err)

	logrus.WithFields(logrus.Fields{
		"function":   "report",
		"session_id": c.id,
		"kind":       kind.String(),
		"op":         op,
		"error":      err.Error(),
	}).Warn("Session error")

	c.metrics.ErrorReported(kind.String())

	if h := c.handlers().onError; h != nil {
		h(e)
	}
	return e
}
