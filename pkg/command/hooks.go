package command

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Validation stages reported to a Recorder
const (
	StageRequest        = "request"
	StageAdditionalData = "additional_data"
	StageResponse       = "response"
)

// Recorder receives execution measurements
type Recorder interface {
	RecordExecution(mode Mode, duration time.Duration, retries int, err error)
	RecordRetry(mode Mode, attempt int, err error)
	RecordValidationFailure(mode Mode, stage string)
}

// Tracer starts spans around executions and annotates them with retry
// events. *observability.TracingProvider satisfies it.
type Tracer interface {
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
	AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type nopRecorder struct{}

func (nopRecorder) RecordExecution(Mode, time.Duration, int, error) {}
func (nopRecorder) RecordRetry(Mode, int, error)                    {}
func (nopRecorder) RecordValidationFailure(Mode, string)            {}

type nopTracer struct {
	tracer trace.Tracer
}

func newNopTracer() Tracer {
	return nopTracer{tracer: noop.NewTracerProvider().Tracer("commkit")}
}

func (t nopTracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

func (nopTracer) AddEvent(context.Context, string, ...attribute.KeyValue) {}
