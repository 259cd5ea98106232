package session

// State is the externally visible protocol state of a Client.
type State int

const (
	// StateDisconnected is both the initial and the terminal state.
	StateDisconnected State = iota
	// StateConnected: socket open, handshake pending.
	StateConnected
	// StateHandshakeComplete: session key delivered, access code pending.
	StateHandshakeComplete
	// StateReady: access code accepted, application traffic allowed.
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateHandshakeComplete:
		return "handshake_complete"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// State derives the current state from the session flags.
func (c *Client[T]) State() State {
	switch {
	case !c.running.Load():
		return StateDisconnected
	case c.codeChecked.Load():
		return StateReady
	case c.handshakeDone.Load():
		return StateHandshakeComplete
	default:
		return StateConnected
	}
}

// notifyState queues the derived state when it changed since the last
// observation and delivers queued states in order. Only one goroutine
// delivers at a time; the callback runs outside the lock and may call back
// into the client.
func (c *Client[T]) notifyState() {
	c.stateMu.Lock()
	s := c.State()
	if s == c.lastState {
		c.stateMu.Unlock()
		return
	}
	c.lastState = s
	c.pendingStates = append(c.pendingStates, s)
	if c.dispatching {
		c.stateMu.Unlock()
		return
	}
	c.dispatching = true

	for len(c.pendingStates) > 0 {
		next := c.pendingStates[0]
		c.pendingStates = c.pendingStates[1:]
		c.stateMu.Unlock()

		if cb := c.handlers().onState; cb != nil {
			cb(next)
		}

		c.stateMu.Lock()
	}
	c.dispatching = false
	c.stateIdle.Broadcast()
	c.stateMu.Unlock()
}

// flushStates blocks until no state notification is being delivered.
func (c *Client[T]) flushStates() {
	c.stateMu.Lock()
	for c.dispatching {
		c.stateIdle.Wait()
	}
	c.stateMu.Unlock()
}
