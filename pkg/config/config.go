// Package config loads commkit settings from JSON, TOML or YAML files
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/command"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
	"github.com/stilsoft/commkit/pkg/logging"
	"github.com/stilsoft/commkit/pkg/observability"
)

// Environment variables applied on top of the file by Load
const (
	EnvLogLevel   = "COMMKIT_LOG_LEVEL"
	EnvRetryCount = "COMMKIT_RETRY_COUNT"
	EnvChannel    = "COMMKIT_CHANNEL_ADDRESS"
)

// Config is the complete commkit configuration
type Config struct {
	Command command.Config              `json:"command" toml:"command" yaml:"command"`
	Channel ChannelConfig               `json:"channel" toml:"channel" yaml:"channel"`
	Logging logging.Config              `json:"logging" toml:"logging" yaml:"logging"`
	Metrics observability.MetricsConfig `json:"metrics" toml:"metrics" yaml:"metrics"`
	Tracing observability.TracingConfig `json:"tracing" toml:"tracing" yaml:"tracing"`
}

// ChannelConfig describes the channel and the middleware wrapped around it
type ChannelConfig struct {
	channel.Configuration `yaml:",inline"`

	// Classify maps raw channel faults to command errors
	Classify bool                   `json:"classify" toml:"classify" yaml:"classify"`
	Breaker  channel.BreakerConfig  `json:"breaker" toml:"breaker" yaml:"breaker"`
	Throttle channel.ThrottleConfig `json:"throttle" toml:"throttle" yaml:"throttle"`
	// Observe records channel spans and metrics when tracing or metrics are enabled
	Observe bool `json:"observe" toml:"observe" yaml:"observe"`
}

// Default returns the built-in configuration
func Default() Config {
	breaker := channel.DefaultBreakerConfig()
	breaker.Enabled = false
	throttle := channel.DefaultThrottleConfig()
	throttle.Enabled = false

	return Config{
		Command: command.DefaultConfig(),
		Channel: ChannelConfig{
			Configuration: channel.Configuration{Name: "default"},
			Classify:      true,
			Breaker:       breaker,
			Throttle:      throttle,
		},
		Logging: logging.DefaultConfig(),
		Metrics: observability.DefaultMetricsConfig(),
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. The format follows the file extension.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadError(path, err)
	}
	if err := Decode(data, Format(path), &cfg); err != nil {
		return nil, loadError(path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Format returns "json", "toml" or "yaml" for a file name, or its bare
// extension when unknown
func Format(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "yml" {
		return "yaml"
	}
	return ext
}

// Decode unmarshals data in the given format into cfg. Keys missing from
// data keep their current values.
func Decode(data []byte, format string, cfg *Config) error {
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	case "toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil
	case "yaml":
		return yaml.UnmarshalStrict(data, cfg)
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
}

func loadError(path string, err error) error {
	return commerrors.WrapError(err, commerrors.CodeConfigurationError,
		fmt.Sprintf("failed to load config %s", path),
		commerrors.CategoryConfiguration, commerrors.SeverityError)
}

func applyEnvOverrides(cfg *Config) error {
	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv(EnvChannel); addr != "" {
		cfg.Channel.Address = addr
	}
	if retries := os.Getenv(EnvRetryCount); retries != "" {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return commerrors.InvalidConfiguration(EnvRetryCount, retries, "not an integer")
		}
		cfg.Command.RetryCount = n
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Command.Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return commerrors.InvalidConfiguration("logging.level", c.Logging.Level, err.Error())
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return commerrors.InvalidConfiguration("logging.format", c.Logging.Format, "must be text or json")
	}

	if c.Channel.Timeout < 0 {
		return commerrors.InvalidConfiguration("channel.timeout", c.Channel.Timeout.String(), "must not be negative")
	}
	if b := c.Channel.Breaker; b.Enabled && (b.FailureThreshold <= 0 || b.SuccessThreshold <= 0 || b.Timeout <= 0) {
		return commerrors.InvalidConfiguration("channel.breaker", b, "thresholds and timeout must be positive")
	}
	if t := c.Channel.Throttle; t.Enabled && (t.PerSec < 0 || t.Burst <= 0 || t.MaxWait < 0) {
		return commerrors.InvalidConfiguration("channel.throttle", t, "per_second and max_wait must not be negative and burst must be positive")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return commerrors.InvalidConfiguration("metrics.listen_address", "", "required when metrics are enabled")
	}
	if r := c.Tracing.SampleRate; r < 0 || r > 1 {
		return commerrors.InvalidConfiguration("tracing.sample_rate", r, "must be between 0 and 1")
	}
	switch c.Tracing.ExporterType {
	case "", observability.ExporterTypeNoop:
	case observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
		if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
			return commerrors.InvalidConfiguration("tracing.endpoint", "", "required for OTLP exporters")
		}
	default:
		return commerrors.InvalidConfiguration("tracing.exporter", string(c.Tracing.ExporterType), "unknown exporter")
	}
	return nil
}

// ChannelMiddleware builds the middleware chain described by the channel
// section: observer, classifier, breaker, throttle from outermost in.
// metrics and tracer may be nil.
func (c *Config) ChannelMiddleware(metrics *observability.CommandMetrics, tracer *observability.TracingProvider) channel.Middleware {
	var chain []channel.Middleware
	if c.Channel.Observe && (metrics != nil || tracer != nil) {
		chain = append(chain, observability.NewChannelMiddleware(metrics, tracer, observability.ChannelObserverConfig{}))
	}
	if c.Channel.Classify {
		chain = append(chain, channel.NewClassifyMiddleware(nil))
	}
	chain = append(chain,
		channel.NewBreakerMiddleware(c.Channel.Breaker),
		channel.NewThrottleMiddleware(c.Channel.Throttle),
	)
	return channel.Chain(chain...)
}
