package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/channel/memory"
	"github.com/stilsoft/commkit/pkg/command"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

func newMetrics(t *testing.T) *CommandMetrics {
	t.Helper()
	m, err := NewCommandMetrics(DefaultMetricsConfig())
	require.NoError(t, err)
	return m
}

func newTracer(t *testing.T, cfg TracingConfig) (*TracingProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	cfg.Exporter = exporter
	tp, err := NewTracingProvider(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exporter
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, StatusOK},
		{"validation", commerrors.EmptyRequest(), "validation"},
		{"cancelled", context.Canceled, "cancelled"},
		{"plain", errors.New("wire cut"), "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestCommandMetricsRecordsExecutions(t *testing.T) {
	m := newMetrics(t)
	mem := memory.New()
	mem.EnqueueError(errors.New("glitch"))

	cmd := command.New(mem,
		command.WithRequest(channel.NewRequest([]byte{1, 2})),
		command.WithRecorder(m),
	)
	require.NoError(t, cmd.Execute(context.Background(), 1, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executionsTotal.WithLabelValues("send_receive", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("send_receive")))

	empty := command.New(mem, command.WithMode(command.ModeSend), command.WithRecorder(m))
	require.Error(t, empty.Execute(context.Background(), 0, nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executionsTotal.WithLabelValues("send", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationFailures.WithLabelValues("send", command.StageRequest)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.executionsTotal))
}

func TestCommandMetricsRuntimeCollectors(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.IncludeRuntime = true
	m, err := NewCommandMetrics(cfg)
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "go_") {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestCommandMetricsEndpoint(t *testing.T) {
	cfg := DefaultMetricsConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	m, err := NewCommandMetrics(cfg)
	require.NoError(t, err)

	m.RecordChannelOperation(channel.OpSend, time.Millisecond, nil)

	require.NoError(t, m.Start(context.Background()))
	defer func() { _ = m.Shutdown(context.Background()) }()
	require.NotEmpty(t, m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `commkit_channel_operations_total{operation="send",status="ok"} 1`)
}

func TestTracingProviderCommandSpan(t *testing.T) {
	tp, exporter := newTracer(t, DefaultTracingConfig())

	mem := memory.New()
	cmd := command.New(mem,
		command.WithRequest(channel.NewRequest([]byte{7})),
		command.WithTracer(tp),
	)
	require.NoError(t, cmd.Execute(context.Background(), 0, nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "command.execute", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)

	mode, ok := attr(spans[0].Attributes, "command.mode")
	require.True(t, ok)
	assert.Equal(t, "send_receive", mode.AsString())
}

func TestTracingProviderRetryEvents(t *testing.T) {
	tp, exporter := newTracer(t, DefaultTracingConfig())

	mem := memory.New()
	mem.EnqueueError(errors.New("glitch"))
	mem.EnqueueError(errors.New("glitch"))
	cmd := command.New(mem,
		command.WithRequest(channel.NewRequest([]byte{7})),
		command.WithTracer(tp),
	)
	require.NoError(t, cmd.Execute(context.Background(), 3, nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	events := spans[0].Events
	require.Len(t, events, 2)
	for i, ev := range events {
		assert.Equal(t, "command.retry", ev.Name)
		attempt, ok := attr(ev.Attributes, "command.attempt")
		require.True(t, ok)
		assert.Equal(t, int64(i+1), attempt.AsInt64())
		left, ok := attr(ev.Attributes, "command.retries_left")
		require.True(t, ok)
		assert.Equal(t, int64(2-i), left.AsInt64())
	}
}

func TestTracingProviderUnknownExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestOperationSampler(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.SampleRate = -1
	cfg.AlwaysSample = []string{channel.OpSendReceive}
	tp, exporter := newTracer(t, cfg)

	_, span := tp.StartChannelSpan(context.Background(), channel.OpSendReceive, "")
	span.End()
	_, span = tp.StartChannelSpan(context.Background(), channel.OpReceive, "")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "channel.send_receive", spans[0].Name)
}

func TestChannelMiddleware(t *testing.T) {
	m := newMetrics(t)
	tp, exporter := newTracer(t, DefaultTracingConfig())

	mem := memory.New()
	mem.EnqueueResponse([]byte{0xAB})
	mem.EnqueueError(errors.New("crc mismatch"))

	ch := NewChannelMiddleware(m, tp, ChannelObserverConfig{CapturePayloads: true}).Wrap(mem)
	ctx := context.Background()

	require.NoError(t, ch.SetConfiguration(ctx, channel.Configuration{Name: "bench-psu"}))

	resp, err := ch.SendReceive(ctx, channel.NewRequest([]byte{0x01, 0x02}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB}, resp.Data())

	_, err = ch.SendReceive(ctx, channel.NewRequest([]byte{0x03}), nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.channelOpsTotal.WithLabelValues(channel.OpSendReceive, StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.channelOpsTotal.WithLabelValues(channel.OpSendReceive, "transport")))

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	ok := spans[1]
	assert.Equal(t, "channel.send_receive", ok.Name)
	name, found := attr(ok.Attributes, AttrChannel)
	require.True(t, found)
	assert.Equal(t, "bench-psu", name.AsString())
	req, found := attr(ok.Attributes, "channel.request")
	require.True(t, found)
	assert.Equal(t, "0102", req.AsString())
	res, found := attr(ok.Attributes, "channel.response")
	require.True(t, found)
	assert.Equal(t, "ab", res.AsString())

	failed := spans[2]
	assert.Equal(t, codes.Error, failed.Status.Code)
	assert.Equal(t, "crc mismatch", failed.Status.Description)
	require.Len(t, failed.Events, 1)
	assert.Equal(t, "exception", failed.Events[0].Name)
	op, found := attr(failed.Events[0].Attributes, AttrOperation)
	require.True(t, found)
	assert.Equal(t, channel.OpSendReceive, op.AsString())
}

func TestChannelMiddlewareRecordsPanics(t *testing.T) {
	tp, exporter := newTracer(t, DefaultTracingConfig())
	mem := memory.New(memory.WithResponder(func(context.Context, []byte) ([]byte, error) {
		panic("driver fault")
	}))
	ch := NewChannelMiddleware(nil, tp, ChannelObserverConfig{RecordPanics: true}).Wrap(mem)

	assert.Panics(t, func() {
		_, _ = ch.SendReceive(context.Background(), channel.NewRequest([]byte{1}), nil)
	})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "panic: driver fault", spans[0].Status.Description)
}

func TestChannelMiddlewareWithoutTracer(t *testing.T) {
	m := newMetrics(t)
	ch := channel.Chain(NewChannelMiddleware(m, nil, ChannelObserverConfig{})).Wrap(memory.New())

	require.NoError(t, ch.Send(context.Background(), channel.NewRequest([]byte{1})))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.channelOpsTotal.WithLabelValues(channel.OpSend, StatusOK)))

	open, err := ch.IsOpen(context.Background())
	require.NoError(t, err)
	assert.True(t, open)
}
