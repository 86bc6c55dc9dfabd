// Package config loads client configuration from YAML files with
// environment variable expansion and duration parsing.
package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/knet/internal/gateway"
	"github.com/luciancaetano/knet/internal/protocol"
)

// Config represents the complete client configuration
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	REST    RESTConfig    `yaml:"rest"`
	Logging LoggingConfig `yaml:"logging"`
}

// GatewayConfig holds the WebSocket session configuration
type GatewayConfig struct {
	Address       string   `yaml:"address"`
	Token         string   `yaml:"token"`
	Intents       []string `yaml:"intents"`
	NativeHeaders bool     `yaml:"native_headers"`
	Presence      string   `yaml:"presence"`
	Activity      string   `yaml:"activity"`
	SessionID     string   `yaml:"session_id"`

	// SendRate is the outbound payload budget per second; zero disables it.
	SendRate float64 `yaml:"send_rate"`
	// SendBurst defaults to SendRate rounded up when SendRate is set.
	SendBurst int `yaml:"send_burst"`

	// Parsed from Intents
	IntentMask gateway.Intents `yaml:"-"`
}

// RESTConfig holds the HTTP pipeline configuration
type RESTConfig struct {
	BaseURL         string `yaml:"base_url"`
	SerializeRoutes bool   `yaml:"serialize_routes"`

	RetryInitialBackoff time.Duration `yaml:"-"`
	RetryMaxBackoff     time.Duration `yaml:"-"`
	Timeout             time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	RetryInitialBackoffRaw string `yaml:"retry_initial_backoff"`
	RetryMaxBackoffRaw     string `yaml:"retry_max_backoff"`
	TimeoutRaw             string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if cfg.Gateway.SendRate > 0 && cfg.Gateway.SendBurst == 0 {
		cfg.Gateway.SendBurst = max(1, int(math.Ceil(cfg.Gateway.SendRate)))
	}

	mask, err := gateway.ParseIntents(cfg.Gateway.Intents)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway.intents: %w", err)
	}
	cfg.Gateway.IntentMask = mask

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Gateway.Address == "" {
		return fmt.Errorf("gateway.address is required")
	}
	u, err := url.Parse(c.Gateway.Address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("gateway.address must be a ws:// or wss:// URL")
	}
	if c.Gateway.IntentMask == 0 {
		return fmt.Errorf("gateway.intents must name at least one intent")
	}
	if c.Gateway.Presence != "" {
		p := protocol.Presence{Status: protocol.PresenceStatus(c.Gateway.Presence)}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("gateway.presence: %w", err)
		}
	}
	if c.Gateway.SendRate < 0 || c.Gateway.SendBurst < 0 {
		return fmt.Errorf("gateway.send_rate and gateway.send_burst must not be negative")
	}

	if c.REST.BaseURL != "" {
		u, err := url.Parse(c.REST.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("rest.base_url must be an absolute URL")
		}
	}
	if c.REST.RetryMaxBackoff != 0 && c.REST.RetryMaxBackoff < c.REST.RetryInitialBackoff {
		return fmt.Errorf("rest.retry_max_backoff must not be less than rest.retry_initial_backoff")
	}

	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"retry_initial_backoff", cfg.REST.RetryInitialBackoffRaw, &cfg.REST.RetryInitialBackoff},
		{"retry_max_backoff", cfg.REST.RetryMaxBackoffRaw, &cfg.REST.RetryMaxBackoff},
		{"timeout", cfg.REST.TimeoutRaw, &cfg.REST.Timeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
