// Package observability provides Prometheus metrics and OpenTelemetry tracing
// for commands and channels
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stilsoft/commkit/pkg/command"
)

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// Service identification
	ServiceName    string `json:"service_name" toml:"service_name" yaml:"service_name"`
	ServiceVersion string `json:"service_version" toml:"service_version" yaml:"service_version"`
	Environment    string `json:"environment" toml:"environment" yaml:"environment"`

	// Exporter configuration
	ExporterType ExporterType      `json:"exporter" toml:"exporter" yaml:"exporter"`
	Endpoint     string            `json:"endpoint" toml:"endpoint" yaml:"endpoint"`
	Headers      map[string]string `json:"headers,omitempty" toml:"headers" yaml:"headers,omitempty"`
	Insecure     bool              `json:"insecure" toml:"insecure" yaml:"insecure"`

	// Sampling. AlwaysSample and NeverSample hold span names or
	// channel operation names (send, receive, send_receive...)
	SampleRate   float64  `json:"sample_rate" toml:"sample_rate" yaml:"sample_rate"`
	AlwaysSample []string `json:"always_sample,omitempty" toml:"always_sample" yaml:"always_sample,omitempty"`
	NeverSample  []string `json:"never_sample,omitempty" toml:"never_sample" yaml:"never_sample,omitempty"`

	BatchTimeout int `json:"batch_timeout" toml:"batch_timeout" yaml:"batch_timeout"` // seconds
	MaxBatchSize int `json:"max_batch_size" toml:"max_batch_size" yaml:"max_batch_size"`
	MaxQueueSize int `json:"max_queue_size" toml:"max_queue_size" yaml:"max_queue_size"`

	ResourceAttributes map[string]string `json:"resource_attributes,omitempty" toml:"resource_attributes" yaml:"resource_attributes,omitempty"`

	// Exporter overrides ExporterType when set. Spans are exported
	// synchronously so tests can read them right after the span ends.
	Exporter sdktrace.SpanExporter `json:"-" toml:"-" yaml:"-"`

	// SetGlobal installs the provider as the otel global tracer provider
	SetGlobal bool `json:"set_global" toml:"set_global" yaml:"set_global"`
}

// ExporterType defines the type of trace exporter
type ExporterType string

const (
	// ExporterTypeOTLPGRPC exports traces via OTLP over gRPC
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"

	// ExporterTypeOTLPHTTP exports traces via OTLP over HTTP
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"

	// ExporterTypeNoop disables trace export
	ExporterTypeNoop ExporterType = "noop"
)

// Attribute keys shared by command and channel spans
const (
	AttrOperation = "channel.operation"
	AttrChannel   = "channel.name"
	AttrBytes     = "channel.bytes"
)

const instrumentationName = "github.com/stilsoft/commkit"

// DefaultTracingConfig returns a disabled configuration exporting nowhere
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName:  "commkit",
		ExporterType: ExporterTypeNoop,
		SampleRate:   1.0,
	}
}

// TracingProvider manages OpenTelemetry tracing. It implements command.Tracer.
type TracingProvider struct {
	tracer   trace.Tracer
	mu       sync.RWMutex
	shutdown func(context.Context) error
}

var _ command.Tracer = (*TracingProvider)(nil)

// NewTracingProvider creates a new tracing provider
func NewTracingProvider(config TracingConfig) (*TracingProvider, error) {
	if config.ServiceName == "" {
		config.ServiceName = "commkit"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}
	if config.Environment == "" {
		config.Environment = "development"
	}
	if config.ExporterType == "" {
		config.ExporterType = ExporterTypeNoop
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = 5
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 512
	}
	if config.MaxQueueSize == 0 {
		config.MaxQueueSize = 2048
	}

	res := createResource(config)

	var processor sdktrace.SpanProcessor
	if config.Exporter != nil {
		processor = sdktrace.NewSimpleSpanProcessor(config.Exporter)
	} else {
		exporter, err := createExporter(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		processor = sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithBatchTimeout(time.Duration(config.BatchTimeout)*time.Second),
			sdktrace.WithMaxExportBatchSize(config.MaxBatchSize),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(config)),
	)

	if config.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return &TracingProvider{
		tracer:   tp.Tracer(instrumentationName),
		shutdown: tp.Shutdown,
	}, nil
}

func createResource(config TracingConfig) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.DeploymentEnvironment(config.Environment),
	}
	for k, v := range config.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func createExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.ExporterType {
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.Endpoint),
			otlptracegrpc.WithHeaders(config.Headers),
		}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(config.Endpoint),
			otlptracehttp.WithHeaders(config.Headers),
		}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	case ExporterTypeNoop:
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.ExporterType)
	}
}

func createSampler(config TracingConfig) sdktrace.Sampler {
	if len(config.AlwaysSample) > 0 || len(config.NeverSample) > 0 {
		return &operationSampler{
			defaultRate:  config.SampleRate,
			fallback:     rateSampler(config.SampleRate),
			alwaysSample: makeStringSet(config.AlwaysSample),
			neverSample:  makeStringSet(config.NeverSample),
		}
	}
	return rateSampler(config.SampleRate)
}

func rateSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// StartSpan starts a new span with the given name and options
func (tp *TracingProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// StartChannelSpan starts a client span for a channel operation
func (tp *TracingProvider) StartChannelSpan(ctx context.Context, operation, channelName string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String(AttrOperation, operation)}
	if channelName != "" {
		attrs = append(attrs, attribute.String(AttrChannel, channelName))
	}
	return tp.tracer.Start(ctx, "channel."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records err on the span in ctx and marks it failed
func (tp *TracingProvider) RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, opts...)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds an event to the span in ctx
func (tp *TracingProvider) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// Shutdown flushes and stops the provider. Later calls are no-ops.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.shutdown == nil {
		return nil
	}
	err := tp.shutdown(ctx)
	tp.shutdown = nil
	return err
}

// operationSampler samples by channel operation or span name
type operationSampler struct {
	defaultRate  float64
	fallback     sdktrace.Sampler
	alwaysSample map[string]struct{}
	neverSample  map[string]struct{}
}

func (s *operationSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	name := params.Name
	for _, attr := range params.Attributes {
		if attr.Key == AttrOperation {
			name = attr.Value.AsString()
			break
		}
	}

	psc := trace.SpanContextFromContext(params.ParentContext)
	if _, ok := s.alwaysSample[name]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.RecordAndSample, Tracestate: psc.TraceState()}
	}
	if _, ok := s.neverSample[name]; ok {
		return sdktrace.SamplingResult{Decision: sdktrace.Drop, Tracestate: psc.TraceState()}
	}
	return s.fallback.ShouldSample(params)
}

func (s *operationSampler) Description() string {
	return fmt.Sprintf("OperationSampler{defaultRate=%.2f}", s.defaultRate)
}

type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error                             { return nil }

func makeStringSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
