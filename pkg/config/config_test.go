package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/channel/memory"
	"github.com/stilsoft/commkit/pkg/command"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
	"github.com/stilsoft/commkit/pkg/observability"
)

const tomlConfig = `
[command]
mode = "receive"
delay_after_send = "20ms"
receive_timeout = "1s"
retry_count = 2

[channel]
name = "psu"
address = "/dev/ttyUSB0"
timeout = "500ms"
classify = true

[channel.breaker]
enabled = true
failure_threshold = 3
success_threshold = 1
timeout = "10s"

[logging]
level = "debug"
format = "json"

[metrics]
namespace = "lab"
`

const yamlConfig = `
command:
  mode: send
  delay_after_send: 5ms
  retry_count: 1
channel:
  name: psu
  address: /dev/ttyUSB1
  timeout: 250ms
  throttle:
    enabled: true
    per_second: 10
    burst: 2
logging:
  level: info
tracing:
  sample_rate: 0.5
`

const jsonConfig = `{
  "command": {"mode": "send_receive", "receive_timeout": "300ms", "max_handler_passes": 4},
  "channel": {"name": "psu", "options": {"baud": "9600"}},
  "metrics": {"enabled": true, "listen_address": "127.0.0.1:9400"}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "commkit.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, command.ModeReceive, cfg.Command.Mode)
	assert.Equal(t, 20*time.Millisecond, cfg.Command.DelayAfterSend.Std())
	require.NotNil(t, cfg.Command.ReceiveTimeout)
	assert.Equal(t, time.Second, cfg.Command.ReceiveTimeout.Std())
	assert.Equal(t, 2, cfg.Command.RetryCount)

	assert.Equal(t, "psu", cfg.Channel.Name)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Channel.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Channel.Timeout)
	assert.True(t, cfg.Channel.Breaker.Enabled)
	assert.Equal(t, 3, cfg.Channel.Breaker.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Channel.Breaker.Timeout)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "lab", cfg.Metrics.Namespace)
	// untouched sections keep their defaults
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, observability.ExporterTypeNoop, cfg.Tracing.ExporterType)
}

func TestLoadYAML(t *testing.T) {
	for _, name := range []string{"commkit.yaml", "commkit.yml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, name, yamlConfig))
			require.NoError(t, err)

			assert.Equal(t, command.ModeSend, cfg.Command.Mode)
			assert.Equal(t, 5*time.Millisecond, cfg.Command.DelayAfterSend.Std())
			assert.Nil(t, cfg.Command.ReceiveTimeout)
			assert.Equal(t, "/dev/ttyUSB1", cfg.Channel.Address)
			assert.Equal(t, 250*time.Millisecond, cfg.Channel.Timeout)
			assert.True(t, cfg.Channel.Throttle.Enabled)
			assert.Equal(t, 10.0, cfg.Channel.Throttle.PerSec)
			assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
		})
	}
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeFile(t, "commkit.json", jsonConfig))
	require.NoError(t, err)

	assert.Equal(t, command.ModeSendReceive, cfg.Command.Mode)
	assert.Equal(t, 4, cfg.Command.MaxHandlerPasses)
	require.NotNil(t, cfg.Command.ReceiveTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Command.ReceiveTimeout.Std())
	assert.Equal(t, map[string]string{"baud": "9600"}, cfg.Channel.Options)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9400", cfg.Metrics.ListenAddress)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		code    int
	}{
		{"unknown extension", "commkit.ini", "mode=send", commerrors.CodeConfigurationError},
		{"bad toml", "commkit.toml", "[command\nmode=", commerrors.CodeConfigurationError},
		{"unknown toml key", "commkit.toml", "[command]\nretries = 3\n", commerrors.CodeConfigurationError},
		{"unknown yaml key", "commkit.yaml", "command:\n  retries: 3\n", commerrors.CodeConfigurationError},
		{"unknown json key", "commkit.json", `{"commands": {}}`, commerrors.CodeConfigurationError},
		{"bad mode", "commkit.yaml", "command:\n  mode: broadcast\n", commerrors.CodeConfigurationError},
		{"negative retries", "commkit.toml", "[command]\nretry_count = -1\n", commerrors.CodeInvalidConfiguration},
		{"bad level", "commkit.json", `{"logging": {"level": "loud"}}`, commerrors.CodeInvalidConfiguration},
		{"bad sample rate", "commkit.yaml", "tracing:\n  sample_rate: 2\n", commerrors.CodeInvalidConfiguration},
		{"otlp without endpoint", "commkit.toml", "[tracing]\nenabled = true\nexporter = \"otlp-grpc\"\n", commerrors.CodeInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.True(t, commerrors.IsCode(err, tt.code), "got %v", err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvRetryCount, "5")
	t.Setenv(EnvChannel, "tcp://10.0.0.7:5025")

	cfg, err := Load(writeFile(t, "commkit.toml", tomlConfig))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Command.RetryCount)
	assert.Equal(t, "tcp://10.0.0.7:5025", cfg.Channel.Address)

	t.Setenv(EnvRetryCount, "many")
	_, err = Load(writeFile(t, "commkit.toml", tomlConfig))
	assert.True(t, commerrors.IsCode(err, commerrors.CodeInvalidConfiguration))
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "yaml", Format("a/b.YML"))
	assert.Equal(t, "toml", Format("commkit.toml"))
}

func TestChannelMiddleware(t *testing.T) {
	cfg := Default()
	cfg.Channel.Breaker = channel.BreakerConfig{Enabled: true, FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}

	mem := memory.New()
	mem.EnqueueError(context.DeadlineExceeded)
	ch := cfg.ChannelMiddleware(nil, nil).Wrap(mem)

	_, err := ch.SendReceive(context.Background(), channel.NewRequest([]byte{1}), nil)
	assert.True(t, commerrors.IsCode(err, commerrors.CodeCommandTimeout))

	_, err = ch.SendReceive(context.Background(), channel.NewRequest([]byte{1}), nil)
	assert.True(t, commerrors.IsCode(err, commerrors.CodeChannelUnavailable))
	assert.Equal(t, 1, mem.Calls(channel.OpSendReceive))
}
