package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes where and how a logger writes
type Config struct {
	Level  string `json:"level" toml:"level" yaml:"level"`
	Format string `json:"format" toml:"format" yaml:"format"` // "text" or "json"
	// Output is "stdout", "stderr" or a file path. File output is rotated.
	Output string `json:"output" toml:"output" yaml:"output"`

	MaxSizeMB  int  `json:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" toml:"compress" yaml:"compress"`
}

// DefaultConfig returns a text logger on stderr at warn level
func DefaultConfig() Config {
	return Config{
		Level:      "warn",
		Format:     "text",
		Output:     "stderr",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// ParseLevel converts a level name to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// NewRotatingOutput returns a size-rotated file writer
func NewRotatingOutput(cfg Config) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Output,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// NewFromConfig builds a logger from cfg. The returned closer releases the
// output file, if any; it is never nil.
func NewFromConfig(cfg Config) (Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		text := NewTextFormatter()
		text.DisableColors = cfg.Output != "" && cfg.Output != "stdout" && cfg.Output != "stderr"
		formatter = text
	case "json":
		formatter = NewJSONFormatter()
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var (
		output io.Writer
		closer io.Closer = io.NopCloser(nil)
	)
	switch cfg.Output {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		rotating := NewRotatingOutput(cfg)
		output, closer = rotating, rotating
	}

	logger := New(output, formatter)
	logger.SetLevel(level)
	return logger, closer, nil
}
