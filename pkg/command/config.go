package command

import (
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Duration is a time.Duration that reads and writes as "250ms" style text
// in JSON, TOML and YAML files
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the file-configurable execution settings of a command
type Config struct {
	Mode             Mode      `json:"mode" toml:"mode" yaml:"mode"`
	DelayAfterSend   Duration  `json:"delay_after_send" toml:"delay_after_send" yaml:"delay_after_send"`
	ReceiveTimeout   *Duration `json:"receive_timeout,omitempty" toml:"receive_timeout" yaml:"receive_timeout,omitempty"`
	RetryCount       int       `json:"retry_count" toml:"retry_count" yaml:"retry_count"`
	MaxHandlerPasses int       `json:"max_handler_passes" toml:"max_handler_passes" yaml:"max_handler_passes"`
}

// DefaultConfig returns a send-receive configuration without retries
func DefaultConfig() Config {
	return Config{
		Mode:             ModeSendReceive,
		MaxHandlerPasses: DefaultMaxHandlerPasses,
	}
}

// Validate checks that every setting is in range
func (c Config) Validate() error {
	if !c.Mode.Valid() {
		return commerrors.InvalidConfiguration("mode", int(c.Mode), "unknown mode")
	}
	if c.DelayAfterSend < 0 {
		return commerrors.InvalidConfiguration("delay_after_send", c.DelayAfterSend.Std().String(), "must not be negative")
	}
	if c.ReceiveTimeout != nil && *c.ReceiveTimeout < 0 {
		return commerrors.InvalidConfiguration("receive_timeout", c.ReceiveTimeout.Std().String(), "must not be negative")
	}
	if c.RetryCount < 0 {
		return commerrors.InvalidConfiguration("retry_count", c.RetryCount, "must not be negative")
	}
	if c.MaxHandlerPasses < 0 {
		return commerrors.InvalidConfiguration("max_handler_passes", c.MaxHandlerPasses, "must not be negative")
	}
	return nil
}

// Apply copies cfg onto the command. RetryCount is not part of the command;
// pass it to Execute. A zero MaxHandlerPasses keeps the default.
func (c *Command) Apply(cfg Config) {
	c.mode = cfg.Mode
	c.delayAfterSend = cfg.DelayAfterSend.Std()
	if cfg.ReceiveTimeout != nil {
		timeout := cfg.ReceiveTimeout.Std()
		c.receiveTimeout = &timeout
	} else {
		c.receiveTimeout = nil
	}
	if cfg.MaxHandlerPasses > 0 {
		c.maxHandlerPasses = cfg.MaxHandlerPasses
	}
}
