package session

import (
	"time"

	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
)

const (
	// DefaultConnectTimeout bounds the TCP dial.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second
)

// Options configures a Client. The zero value of a field selects its default.
type Options struct {
	// Codec encodes messages. Defaults to protocol.DefaultCodec.
	Codec protocol.Codec

	// ConnectTimeout bounds Connect. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each frame write. Defaults to DefaultWriteTimeout;
	// a negative value disables write deadlines.
	WriteTimeout time.Duration

	// Metrics records session activity. Nil disables metrics.
	Metrics *metrics.Metrics
}

// DefaultOptions returns Options with every default filled in.
func DefaultOptions() *Options {
	return &Options{
		Codec:          protocol.DefaultCodec,
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

func (o *Options) withDefaults() Options {
	out := *DefaultOptions()
	if o == nil {
		return out
	}
	if o.Codec != nil {
		out.Codec = o.Codec
	}
	if o.ConnectTimeout > 0 {
		out.ConnectTimeout = o.ConnectTimeout
	}
	if o.WriteTimeout != 0 {
		out.WriteTimeout = o.WriteTimeout
	}
	out.Metrics = o.Metrics
	return out
}
