package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where a failure happened.
type ErrorKind int

const (
	// KindConnection: the TCP socket could not connect.
	KindConnection ErrorKind = iota + 1
	// KindHandshake: missing key material or a second handshake waiter.
	KindHandshake
	// KindSend: a message was rejected by the gate or could not be written.
	KindSend
	// KindReceive: read, decrypt or decode failure. Ends the session.
	KindReceive
	// KindDisconnect: closing the socket failed.
	KindDisconnect
	// KindDiscovery: a discovery attempt failed. The scan continues.
	KindDiscovery
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindHandshake:
		return "handshake"
	case KindSend:
		return "send"
	case KindReceive:
		return "receive"
	case KindDisconnect:
		return "disconnect"
	case KindDiscovery:
		return "discovery"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified failure handed to an ErrorHandler.
type Error struct {
	Kind ErrorKind
	Op   string // operation that caused the error
	Addr string // remote address if relevant
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(kind ErrorKind, op, addr string, err error) *Error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}

// KindOf returns the kind of err if it is or wraps an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ErrorHandler receives every failure reported by a client or discovery run.
// It is called from whichever goroutine observed the failure.
type ErrorHandler func(err *Error)

// ErrProtocolState matches every StateError via errors.Is.
var ErrProtocolState = errors.New("protocol state error")

// StateError reports an operation attempted in the wrong protocol state.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Is makes errors.Is(err, ErrProtocolState) true for any StateError.
func (e *StateError) Is(target error) bool {
	return target == ErrProtocolState
}
