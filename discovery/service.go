package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/limits"
	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
	"github.com/opd-ai/seclink/transport"
)

// readRetryDelay is the pause after a failed receive that was not a timeout.
const readRetryDelay = 50 * time.Millisecond

// ErrAlreadyDiscovering is returned when a run is started while another is
// still active.
var ErrAlreadyDiscovering = errors.New("discovery already running")

// State is the lifecycle state of a Service.
type State int

const (
	// StateIdle: no run started yet.
	StateIdle State = iota
	// StateDiscovering: a scan goroutine is active.
	StateDiscovering
	// StateFinished: the last run completed. A new run may be started.
	StateFinished
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Service scans the local network for servers answering discovery requests.
type Service struct {
	port             int
	name             string
	attemptTimeout   time.Duration
	budget           time.Duration
	broadcastAddress string
	codec            protocol.Codec
	metrics          *metrics.Metrics
	clock            TimeProvider
	listen           func(ctx context.Context, network, addr string) (net.PacketConn, error)

	mu        sync.Mutex
	state     State
	done      chan struct{}
	cancelled atomic.Bool

	handlerMu    sync.RWMutex
	onDiscovered func(ep protocol.DiscoveredEndpoint)
	onFinish     func(eps []protocol.DiscoveredEndpoint)
	onError      protocol.ErrorHandler
}

// NewService creates a Service that broadcasts to port.
func NewService(port int, opts *Options) (*Service, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid discovery port %d", port)
	}
	o := opts.withDefaults()

	logrus.WithFields(logrus.Fields{
		"function":  "NewService",
		"port":      port,
		"name":      o.Name,
		"budget":    o.Budget,
		"broadcast": o.BroadcastAddress,
	}).Debug("Creating discovery service")

	return &Service{
		port:             port,
		name:             o.Name,
		attemptTimeout:   o.AttemptTimeout,
		budget:           o.Budget,
		broadcastAddress: o.BroadcastAddress,
		codec:            o.Codec,
		metrics:          o.Metrics,
		clock:            o.TimeProvider,
		listen:           transport.ListenBroadcast,
	}, nil
}

// Name returns the client name sent in requests.
func (s *Service) Name() string { return s.name }

// OnDiscovered sets the callback invoked once per newly found endpoint.
func (s *Service) OnDiscovered(fn func(ep protocol.DiscoveredEndpoint)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onDiscovered = fn
}

// OnFinish sets the callback invoked with every endpoint found once a run
// ends.
func (s *Service) OnFinish(fn func(eps []protocol.DiscoveredEndpoint)) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onFinish = fn
}

// OnError sets the handler for discovery failures.
func (s *Service) OnError(fn protocol.ErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onError = fn
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsDiscovering reports whether a run is active.
func (s *Service) IsDiscovering() bool {
	return s.State() == StateDiscovering
}

// StartDiscovering starts a run in a new goroutine and returns immediately.
// Callbacks are invoked from that goroutine.
func (s *Service) StartDiscovering() error {
	s.mu.Lock()
	if s.state == StateDiscovering {
		s.mu.Unlock()
		return ErrAlreadyDiscovering
	}
	s.state = StateDiscovering
	s.cancelled.Store(false)
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	s.metrics.DiscoveryStarted()

	logrus.WithFields(logrus.Fields{
		"function": "StartDiscovering",
		"port":     s.port,
		"name":     s.name,
	}).Info("Discovery started")

	go s.run(done)
	return nil
}

// CancelDiscovering asks the active run to stop. The run notices at its
// next receive attempt, so it ends within one attempt timeout.
func (s *Service) CancelDiscovering() {
	s.cancelled.Store(true)

	logrus.WithFields(logrus.Fields{
		"function": "CancelDiscovering",
	}).Debug("Discovery cancellation requested")
}

// Wait blocks until the current run, if any, has finished and its finish
// callback returned.
func (s *Service) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Service) run(done chan struct{}) {
	defer close(done)

	endpoints := s.scan()

	s.mu.Lock()
	s.state = StateFinished
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "run",
		"endpoints": len(endpoints),
		"cancelled": s.cancelled.Load(),
	}).Info("Discovery finished")

	s.handlerMu.RLock()
	onFinish := s.onFinish
	s.handlerMu.RUnlock()
	if onFinish != nil {
		onFinish(endpoints)
	}
}

// scan broadcasts the request and collects responses until the budget is
// spent or the run is cancelled.
func (s *Service) scan() []protocol.DiscoveredEndpoint {
	endpoints := make([]protocol.DiscoveredEndpoint, 0)

	conn, err := s.listen(context.Background(), "udp4", ":0")
	if err != nil {
		s.report("listen", err)
		return endpoints
	}
	defer conn.Close()

	if err := s.sendRequest(conn); err != nil {
		s.report("request", err)
		return endpoints
	}

	deadline := s.clock.Now().Add(s.budget)
	seen := make(map[string]struct{})
	buf := make([]byte, limits.MaxDatagramSize)

	for !s.cancelled.Load() {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		wait := s.attemptTimeout
		if remaining < wait {
			wait = remaining
		}
		if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			s.report("deadline", err)
			break
		}

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.report("read", err)
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.pause(deadline)
			continue
		}

		ep, ok := s.accept(buf[:n], seen)
		if !ok {
			continue
		}
		endpoints = append(endpoints, ep)

		s.handlerMu.RLock()
		onDiscovered := s.onDiscovered
		s.handlerMu.RUnlock()
		if onDiscovered != nil {
			onDiscovered(ep)
		}
	}

	return endpoints
}

// pause waits readRetryDelay or until the budget runs out, whichever is first.
func (s *Service) pause(deadline time.Time) {
	if d := min(readRetryDelay, deadline.Sub(s.clock.Now())); d > 0 {
		time.Sleep(d)
	}
}

func (s *Service) sendRequest(conn net.PacketConn) error {
	target := net.JoinHostPort(s.broadcastAddress, strconv.Itoa(s.port))
	dst, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, err)
	}

	request, err := s.codec.Marshal(protocol.NewDiscoveryRequest(s.name))
	if err != nil {
		return err
	}
	if _, err := conn.WriteTo(request, dst); err != nil {
		return fmt.Errorf("send request to %s: %w", target, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "sendRequest",
		"target":   target,
		"size":     len(request),
	}).Debug("Sent discovery request")
	return nil
}

// accept decodes one datagram and returns the endpoint it announces if it
// is a valid response from an IP not seen before.
func (s *Service) accept(datagram []byte, seen map[string]struct{}) (protocol.DiscoveredEndpoint, bool) {
	if err := limits.ValidateDatagram(datagram); err != nil {
		s.metrics.DiscoveryResponse("malformed")
		s.report("decode", err)
		return protocol.DiscoveredEndpoint{}, false
	}

	var msg protocol.DiscoveryMessage
	if err := s.codec.Unmarshal(datagram, &msg); err != nil {
		s.metrics.DiscoveryResponse("malformed")
		s.report("decode", err)
		return protocol.DiscoveredEndpoint{}, false
	}

	if !msg.IsValidResponse() {
		s.metrics.DiscoveryResponse("invalid")
		logrus.WithFields(logrus.Fields{
			"function": "accept",
			"type":     string(msg.Type),
		}).Debug("Ignoring invalid discovery response")
		return protocol.DiscoveredEndpoint{}, false
	}

	if _, dup := seen[msg.Address.IP]; dup {
		s.metrics.DiscoveryResponse("duplicate")
		return protocol.DiscoveredEndpoint{}, false
	}
	seen[msg.Address.IP] = struct{}{}
	s.metrics.DiscoveryResponse("accepted")

	ep := protocol.DiscoveredEndpoint{Name: msg.Name, Address: *msg.Address}
	logrus.WithFields(logrus.Fields{
		"function": "accept",
		"name":     ep.Name,
		"address":  ep.Address.String(),
	}).Info("Discovered endpoint")
	return ep, true
}

func (s *Service) report(op string, err error) {
	e := protocol.NewError(protocol.KindDiscovery, op, "", err)

	logrus.WithFields(logrus.Fields{
		"function": "report",
		"op":       op,
		"error":    err.Error(),
	}).Warn("Discovery error")

	s.metrics.ErrorReported(protocol.KindDiscovery.String())

	s.handlerMu.RLock()
	h := s.onError
	s.handlerMu.RUnlock()
	if h != nil {
		h(e)
	}
}
