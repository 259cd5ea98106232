// Package config provides configuration parsing and validation for seclink.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/seclink/protocol"
)

// Config represents the complete client configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// SessionConfig configures the secure session client.
type SessionConfig struct {
	Address          string `yaml:"address"` // host:port of the server
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	WriteTimeoutMs   int    `yaml:"write_timeout_ms"`
}

// DiscoveryConfig configures UDP discovery.
type DiscoveryConfig struct {
	Port             int    `yaml:"port"` // required by discovery runs
	Name             string `yaml:"name"`
	AttemptTimeoutMs int    `yaml:"attempt_timeout_ms"`
	BudgetMs         int    `yaml:"budget_ms"`
	BroadcastAddress string `yaml:"broadcast_address"`
}

// MetricsConfig toggles Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{
			ConnectTimeoutMs: 5000,
			WriteTimeoutMs:   5000,
		},
		Discovery: DiscoveryConfig{
			Name:             "udp-discover-client",
			AttemptTimeoutMs: 500,
			BudgetMs:         5000,
			BroadcastAddress: "255.255.255.255",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR}, ${VAR:-default} or $VAR.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			if val, ok := os.LookupEnv(name[:idx]); ok {
				return val
			}
			return name[idx+2:]
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Session.Address != "" {
		if _, err := protocol.ParseEndpointAddress(c.Session.Address); err != nil {
			errs = append(errs, fmt.Sprintf("session.address: %v", err))
		}
	}
	if c.Session.ConnectTimeoutMs < 1 {
		errs = append(errs, "session.connect_timeout_ms must be positive")
	}
	if c.Session.WriteTimeoutMs < 0 {
		errs = append(errs, "session.write_timeout_ms must not be negative")
	}

	if c.Discovery.Port < 0 || c.Discovery.Port > 65535 {
		errs = append(errs, fmt.Sprintf("discovery.port out of range: %d", c.Discovery.Port))
	}
	if c.Discovery.Name == "" {
		errs = append(errs, "discovery.name is required")
	}
	if c.Discovery.AttemptTimeoutMs < 1 {
		errs = append(errs, "discovery.attempt_timeout_ms must be positive")
	}
	if c.Discovery.BudgetMs < c.Discovery.AttemptTimeoutMs {
		errs = append(errs, "discovery.budget_ms must be >= attempt_timeout_ms")
	}
	if ip := net.ParseIP(c.Discovery.BroadcastAddress); ip == nil || ip.To4() == nil {
		errs = append(errs, fmt.Sprintf("discovery.broadcast_address: invalid IPv4 address: %s", c.Discovery.BroadcastAddress))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// ConnectTimeout returns the dial timeout.
func (s SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the per-frame write timeout. A zero setting disables
// write deadlines and comes back as a negative duration.
func (s SessionConfig) WriteTimeout() time.Duration {
	if s.WriteTimeoutMs == 0 {
		return -1
	}
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// AttemptTimeout returns the per-receive timeout.
func (d DiscoveryConfig) AttemptTimeout() time.Duration {
	return time.Duration(d.AttemptTimeoutMs) * time.Millisecond
}

// Budget returns the total discovery time.
func (d DiscoveryConfig) Budget() time.Duration {
	return time.Duration(d.BudgetMs) * time.Millisecond
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
