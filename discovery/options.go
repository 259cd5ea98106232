package discovery

import (
	"time"

	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
)

const (
	// DefaultName is the client name sent in discovery requests.
	DefaultName = "udp-discover-client"

	// DefaultAttemptTimeout bounds a single receive attempt.
	DefaultAttemptTimeout = 500 * time.Millisecond

	// DefaultBudget bounds a whole discovery run.
	DefaultBudget = 5000 * time.Millisecond

	// DefaultBroadcastAddress is the limited broadcast address.
	DefaultBroadcastAddress = "255.255.255.255"
)

// Options configures a Service. Zero fields select their defaults.
type Options struct {
	Name             string
	AttemptTimeout   time.Duration
	Budget           time.Duration
	BroadcastAddress string
	Codec            protocol.Codec
	Metrics          *metrics.Metrics
	TimeProvider     TimeProvider
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() *Options {
	return &Options{
		Name:             DefaultName,
		AttemptTimeout:   DefaultAttemptTimeout,
		Budget:           DefaultBudget,
		BroadcastAddress: DefaultBroadcastAddress,
		Codec:            protocol.DefaultCodec,
		TimeProvider:     RealTimeProvider{},
	}
}

func (o *Options) withDefaults() Options {
	out := *DefaultOptions()
	if o == nil {
		return out
	}
	if o.Name != "" {
		out.Name = o.Name
	}
	if o.AttemptTimeout > 0 {
		out.AttemptTimeout = o.AttemptTimeout
	}
	if o.Budget > 0 {
		out.Budget = o.Budget
	}
	if o.BroadcastAddress != "" {
		out.BroadcastAddress = o.BroadcastAddress
	}
	if o.Codec != nil {
		out.Codec = o.Codec
	}
	if o.TimeProvider != nil {
		out.TimeProvider = o.TimeProvider
	}
	out.Metrics = o.Metrics
	return out
}
