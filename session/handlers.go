package session

import "github.com/opd-ai/seclink/protocol"

type handlerSet[T any] struct {
	onData  func(model T)
	onCode  func(correct bool)
	onError protocol.ErrorHandler
	onState func(s State)
}

// OnData sets the callback for decoded application messages.
func (c *Client[T]) OnData(fn func(model T)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlerSet.onData = fn
}

// OnCodeEvaluation sets the callback for the server's access code verdict.
// It fires for every verdict, accepted or not.
func (c *Client[T]) OnCodeEvaluation(fn func(correct bool)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlerSet.onCode = fn
}

// OnError sets the handler every failure is reported to.
func (c *Client[T]) OnError(fn protocol.ErrorHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlerSet.onError = fn
}

// OnStateChange sets the callback invoked on every state transition.
func (c *Client[T]) OnStateChange(fn func(s State)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlerSet.onState = fn
}

func (c *Client[T]) handlers() handlerSet[T] {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return c.handlerSet
}
