package observability

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stilsoft/commkit/pkg/channel"
)

// ChannelObserverConfig tunes what the channel middleware records
type ChannelObserverConfig struct {
	// CapturePayloads adds hex encoded request and response bytes to spans
	CapturePayloads bool
	// MaxPayloadBytes bounds captured payloads (default 64)
	MaxPayloadBytes int
	// RecordPanics records panics from the wrapped channel as span errors
	// before re-panicking
	RecordPanics bool
}

// ChannelObserver traces and measures every call on the wrapped channel.
// Either of metrics and tracer may be nil.
type ChannelObserver struct {
	config  ChannelObserverConfig
	metrics *CommandMetrics
	tracer  *TracingProvider
}

// NewChannelMiddleware creates a channel middleware recording spans and
// channel operation metrics
func NewChannelMiddleware(metrics *CommandMetrics, tracer *TracingProvider, config ChannelObserverConfig) *ChannelObserver {
	if config.MaxPayloadBytes <= 0 {
		config.MaxPayloadBytes = 64
	}
	return &ChannelObserver{config: config, metrics: metrics, tracer: tracer}
}

// Wrap implements channel.Middleware
func (o *ChannelObserver) Wrap(ch channel.Channel) channel.Channel {
	return &observedChannel{Delegate: channel.Delegate{Next: ch}, observer: o}
}

type observedChannel struct {
	channel.Delegate
	observer *ChannelObserver

	mu   sync.RWMutex
	name string
}

// call is one observed operation
type call struct {
	ctx   context.Context
	op    string
	span  trace.Span
	start time.Time
	o     *ChannelObserver
}

func (c *observedChannel) begin(ctx context.Context, op string) *call {
	cl := &call{ctx: ctx, op: op, start: time.Now(), o: c.observer}
	if c.observer.tracer != nil {
		c.mu.RLock()
		name := c.name
		c.mu.RUnlock()
		cl.ctx, cl.span = c.observer.tracer.StartChannelSpan(ctx, op, name)
	}
	return cl
}

func (cl *call) payload(key string, data []byte) {
	if cl.span == nil || !cl.o.config.CapturePayloads || !cl.span.IsRecording() {
		return
	}
	cl.span.SetAttributes(attribute.Int(AttrBytes, len(data)))
	if len(data) > cl.o.config.MaxPayloadBytes {
		data = data[:cl.o.config.MaxPayloadBytes]
	}
	cl.span.SetAttributes(attribute.String(key, hex.EncodeToString(data)))
}

func (cl *call) capturePanic() {
	if !cl.o.config.RecordPanics || cl.span == nil {
		return
	}
	if r := recover(); r != nil {
		cl.o.tracer.RecordError(cl.ctx, fmt.Errorf("panic: %v", r))
		cl.span.End()
		panic(r)
	}
}

func (cl *call) end(err error) {
	if cl.o.metrics != nil {
		cl.o.metrics.RecordChannelOperation(cl.op, time.Since(cl.start), err)
	}
	if cl.span == nil {
		return
	}
	if err != nil {
		cl.o.tracer.RecordError(cl.ctx, err, trace.WithAttributes(attribute.String(AttrOperation, cl.op)))
	} else {
		cl.span.SetStatus(codes.Ok, "")
	}
	cl.span.End()
}

func requestData(r channel.Request) []byte {
	if r == nil {
		return nil
	}
	return r.Data()
}

func responseData(r channel.Response) []byte {
	if r == nil {
		return nil
	}
	return r.Data()
}

func (c *observedChannel) Open(ctx context.Context) error {
	cl := c.begin(ctx, channel.OpOpen)
	defer cl.capturePanic()
	err := c.Next.Open(cl.ctx)
	cl.end(err)
	return err
}

func (c *observedChannel) Close(ctx context.Context) error {
	cl := c.begin(ctx, channel.OpClose)
	defer cl.capturePanic()
	err := c.Next.Close(cl.ctx)
	cl.end(err)
	return err
}

func (c *observedChannel) Send(ctx context.Context, request channel.Request) error {
	cl := c.begin(ctx, channel.OpSend)
	defer cl.capturePanic()
	cl.payload("channel.request", requestData(request))
	err := c.Next.Send(cl.ctx, request)
	cl.end(err)
	return err
}

func (c *observedChannel) Receive(ctx context.Context, timeout *time.Duration) (channel.Response, error) {
	cl := c.begin(ctx, channel.OpReceive)
	defer cl.capturePanic()
	resp, err := c.Next.Receive(cl.ctx, timeout)
	if err == nil {
		cl.payload("channel.response", responseData(resp))
	}
	cl.end(err)
	return resp, err
}

func (c *observedChannel) SendReceive(ctx context.Context, request channel.Request, timeout *time.Duration) (channel.Response, error) {
	cl := c.begin(ctx, channel.OpSendReceive)
	defer cl.capturePanic()
	cl.payload("channel.request", requestData(request))
	resp, err := c.Next.SendReceive(cl.ctx, request, timeout)
	if err == nil {
		cl.payload("channel.response", responseData(resp))
	}
	cl.end(err)
	return resp, err
}

func (c *observedChannel) SetConfiguration(ctx context.Context, config channel.Configuration) error {
	cl := c.begin(ctx, channel.OpSetConfiguration)
	defer cl.capturePanic()
	err := c.Next.SetConfiguration(cl.ctx, config)
	if err == nil {
		c.mu.Lock()
		c.name = config.Name
		c.mu.Unlock()
	}
	cl.end(err)
	return err
}

func (c *observedChannel) StartPeriodicMessage(ctx context.Context, request channel.Request, interval time.Duration) (channel.PeriodicHandle, error) {
	cl := c.begin(ctx, channel.OpStartPeriodic)
	defer cl.capturePanic()
	handle, err := c.Next.StartPeriodicMessage(cl.ctx, request, interval)
	cl.end(err)
	return handle, err
}

func (c *observedChannel) StopPeriodicMessage(ctx context.Context, handle channel.PeriodicHandle) error {
	cl := c.begin(ctx, channel.OpStopPeriodic)
	defer cl.capturePanic()
	err := c.Next.StopPeriodicMessage(cl.ctx, handle)
	cl.end(err)
	return err
}
