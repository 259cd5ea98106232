// Package seclink is a client for servers speaking the seclink secure
// session protocol, with UDP broadcast discovery to find them.
//
// Example:
//
//	options := seclink.NewOptions()
//	options.Config.Discovery.Port = 7001
//
//	endpoints, err := seclink.Discover(ctx, options)
//	if err != nil || len(endpoints) == 0 {
//	    log.Fatal("no server found")
//	}
//
//	options.Config.Session.Address = endpoints[0].Address.String()
//	client, err := seclink.NewClient[Message](options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.OnCodeEvaluation(func(ok bool) {
//	    fmt.Println("code accepted:", ok)
//	})
//	client.OnData(func(m Message) {
//	    fmt.Printf("received %+v\n", m)
//	})
//
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.WaitForHandshake(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	client.SendCode("1234")
package seclink

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/seclink/config"
	"github.com/opd-ai/seclink/discovery"
	"github.com/opd-ai/seclink/metrics"
	"github.com/opd-ai/seclink/protocol"
	"github.com/opd-ai/seclink/session"
)

var (
	// ErrNoAddress is returned when no server address is configured.
	ErrNoAddress = errors.New("no server address configured")

	// ErrNoDiscoveryPort is returned when no discovery port is configured.
	ErrNoDiscoveryPort = errors.New("no discovery port configured")
)

// Options contains everything needed to build clients and discovery
// services.
type Options struct {
	Config *config.Config

	// Metrics overrides the instrumentation target. When nil and
	// Config.Metrics.Enabled is set, the default registry is used.
	Metrics *metrics.Metrics
}

// NewOptions returns Options holding the default configuration.
func NewOptions() *Options {
	return &Options{Config: config.Default()}
}

func (o *Options) config() *config.Config {
	if o == nil || o.Config == nil {
		return config.Default()
	}
	return o.Config
}

func (o *Options) metrics() *metrics.Metrics {
	if o != nil && o.Metrics != nil {
		return o.Metrics
	}
	if o.config().Metrics.Enabled {
		return metrics.Default()
	}
	return nil
}

// NewClient creates a session client for the configured server address.
func NewClient[T any](options *Options) (*session.Client[T], error) {
	cfg := options.config()
	if cfg.Session.Address == "" {
		return nil, ErrNoAddress
	}
	address, err := protocol.ParseEndpointAddress(cfg.Session.Address)
	if err != nil {
		return nil, err
	}

	return session.New[T](address, &session.Options{
		ConnectTimeout: cfg.Session.ConnectTimeout(),
		WriteTimeout:   cfg.Session.WriteTimeout(),
		Metrics:        options.metrics(),
	})
}

// NewDiscovery creates a discovery service from the configuration.
func NewDiscovery(options *Options) (*discovery.Service, error) {
	cfg := options.config()
	if cfg.Discovery.Port == 0 {
		return nil, ErrNoDiscoveryPort
	}

	return discovery.NewService(cfg.Discovery.Port, &discovery.Options{
		Name:             cfg.Discovery.Name,
		AttemptTimeout:   cfg.Discovery.AttemptTimeout(),
		Budget:           cfg.Discovery.Budget(),
		BroadcastAddress: cfg.Discovery.BroadcastAddress,
		Metrics:          options.metrics(),
	})
}

// Discover runs one discovery scan and returns the endpoints found. The
// scan is cancelled when ctx is done; endpoints found until then are
// still returned along with ctx.Err().
func Discover(ctx context.Context, options *Options) ([]protocol.DiscoveredEndpoint, error) {
	svc, err := NewDiscovery(options)
	if err != nil {
		return nil, err
	}

	result := make(chan []protocol.DiscoveredEndpoint, 1)
	svc.OnFinish(func(eps []protocol.DiscoveredEndpoint) {
		result <- eps
	})

	if err := svc.StartDiscovering(); err != nil {
		return nil, err
	}

	select {
	case eps := <-result:
		return eps, nil
	case <-ctx.Done():
		svc.CancelDiscovering()
		return <-result, ctx.Err()
	}
}

// ConfigureLogging applies the log level and format to the standard
// logrus logger.
func ConfigureLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	switch cfg.Format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return nil
}
