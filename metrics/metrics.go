// Package metrics provides Prometheus metrics for seclink sessions and
// discovery runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "seclink"
)

// Metrics contains all Prometheus metrics for a process. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Session metrics
	SessionsActive    prometheus.Gauge
	Handshakes        *prometheus.CounterVec
	HandshakeDuration prometheus.Histogram
	CodeChecks        *prometheus.CounterVec

	// Data transfer metrics
	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	BytesSent      prometheus.Counter
	BytesReceived  prometheus.Counter

	// Failures by protocol.ErrorKind name
	Errors *prometheus.CounterVec

	// Discovery metrics
	DiscoveryRuns      prometheus.Counter
	EndpointsFound     prometheus.Counter
	DiscoveryResponses *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the metrics instance registered with the default registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegistry creates a Metrics instance registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of running session clients.",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Handshakes by result.",
		}, []string{"result"}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connect to handshake completion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		CodeChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "code_checks_total",
			Help:      "Access code evaluations received, by result.",
		}, []string{"result"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_sent_total",
			Help:      "Frames written to servers.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Frames read from servers.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bytes_sent_total",
			Help:      "Frame payload bytes written.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "bytes_received_total",
			Help:      "Frame payload bytes read.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Reported failures by kind.",
		}, []string{"kind"}),
		DiscoveryRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "runs_total",
			Help:      "Discovery runs started.",
		}),
		EndpointsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "endpoints_total",
			Help:      "Distinct endpoints discovered across runs.",
		}),
		DiscoveryResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "responses_total",
			Help:      "Datagrams received during discovery, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.Handshakes,
		m.HandshakeDuration,
		m.CodeChecks,
		m.FramesSent,
		m.FramesReceived,
		m.BytesSent,
		m.BytesReceived,
		m.Errors,
		m.DiscoveryRuns,
		m.EndpointsFound,
		m.DiscoveryResponses,
	)

	return m
}

// SessionStarted records a running session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionStopped records a session shutdown.
func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// HandshakeCompleted records a handshake outcome. d is only observed on success.
func (m *Metrics) HandshakeCompleted(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	if ok {
		m.Handshakes.WithLabelValues("success").Inc()
		m.HandshakeDuration.Observe(d.Seconds())
		return
	}
	m.Handshakes.WithLabelValues("failure").Inc()
}

// CodeEvaluated records an access code verdict.
func (m *Metrics) CodeEvaluated(correct bool) {
	if m == nil {
		return
	}
	if correct {
		m.CodeChecks.WithLabelValues("accepted").Inc()
		return
	}
	m.CodeChecks.WithLabelValues("rejected").Inc()
}

// FrameSent records an outgoing frame of n payload bytes.
func (m *Metrics) FrameSent(n int) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(n))
}

// FrameReceived records an incoming frame of n payload bytes.
func (m *Metrics) FrameReceived(n int) {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// ErrorReported records a failure of the named kind.
func (m *Metrics) ErrorReported(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

// DiscoveryStarted records a new discovery run.
func (m *Metrics) DiscoveryStarted() {
	if m == nil {
		return
	}
	m.DiscoveryRuns.Inc()
}

// DiscoveryResponse records a received datagram by outcome:
// "accepted", "duplicate", "invalid" or "malformed".
func (m *Metrics) DiscoveryResponse(outcome string) {
	if m == nil {
		return
	}
	m.DiscoveryResponses.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		m.EndpointsFound.Inc()
	}
}
