package discovery

import "time"

// TimeProvider supplies the clock the scan budget is measured against.
// Tests inject a fake to drive the budget deterministically.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
}

// RealTimeProvider implements TimeProvider using the system clock.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}
