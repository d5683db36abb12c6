// Package command drives a byte-payload request/response exchange over a
// channel.Channel.
//
// A Command validates its request, overlays additional data segments, runs
// the channel operation for its Mode with a retry budget, passes any response
// through a pipeline of response handlers and finally validates the accepted
// response. TypedCommand adds parsing and conversion of the response into a
// result value.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
	"github.com/stilsoft/commkit/pkg/logging"
)

const component = "Command"

// Executor is implemented by every command variant
type Executor interface {
	Execute(ctx context.Context, retryCount int, onRetry func(int)) error
	Response() channel.Response
	Mode() Mode
}

// Command is a single request/response exchange. A Command must not be
// executed concurrently with itself; the channel may be shared.
type Command struct {
	channel        channel.Channel
	mode           Mode
	request        channel.Request
	delayAfterSend time.Duration
	receiveTimeout *time.Duration

	requestValidators  []channel.Validator
	responseValidators []ResponseValidator
	responseHandlers   []ResponseHandler
	maxHandlerPasses   int

	logger   logging.Logger
	recorder Recorder
	tracer   Tracer

	response channel.Response
}

// Option configures a Command
type Option func(*Command)

// WithMode sets the execution mode. The default is ModeSendReceive.
func WithMode(mode Mode) Option {
	return func(c *Command) { c.mode = mode }
}

// WithRequest sets the request sent by Send and SendReceive modes
func WithRequest(request channel.Request) Option {
	return func(c *Command) { c.request = request }
}

// WithDelayAfterSend sets the pause after every successful channel call
func WithDelayAfterSend(d time.Duration) Option {
	return func(c *Command) { c.delayAfterSend = d }
}

// WithReceiveTimeout sets the timeout passed to Receive, SendReceive and handlers
func WithReceiveTimeout(d time.Duration) Option {
	return func(c *Command) { c.receiveTimeout = &d }
}

// WithRequestValidators appends request validators
func WithRequestValidators(v ...channel.Validator) Option {
	return func(c *Command) { c.requestValidators = append(c.requestValidators, v...) }
}

// WithResponseValidators appends response validators
func WithResponseValidators(v ...ResponseValidator) Option {
	return func(c *Command) { c.responseValidators = append(c.responseValidators, v...) }
}

// WithResponseHandlers appends response handlers
func WithResponseHandlers(h ...ResponseHandler) Option {
	return func(c *Command) { c.responseHandlers = append(c.responseHandlers, h...) }
}

// WithMaxHandlerPasses bounds handler pipeline restarts
func WithMaxHandlerPasses(n int) Option {
	return func(c *Command) { c.maxHandlerPasses = n }
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(c *Command) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Command) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTracer sets the tracer
func WithTracer(t Tracer) Option {
	return func(c *Command) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithConfig applies a Config
func WithConfig(cfg Config) Option {
	return func(c *Command) { c.Apply(cfg) }
}

// New creates a command bound to ch
func New(ch channel.Channel, opts ...Option) *Command {
	c := &Command{
		channel:            ch,
		mode:               ModeSendReceive,
		requestValidators:  []channel.Validator{},
		responseValidators: []ResponseValidator{},
		responseHandlers:   []ResponseHandler{},
		maxHandlerPasses:   DefaultMaxHandlerPasses,
		logger:             logging.GetGlobalLogger(),
		recorder:           nopRecorder{},
		tracer:             newNopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Command) Mode() Mode { return c.mode }

func (c *Command) Request() channel.Request { return c.request }

// Response returns the response accepted by the last successful execution
func (c *Command) Response() channel.Response { return c.response }

func (c *Command) Channel() channel.Channel { return c.channel }

func (c *Command) DelayAfterSend() time.Duration { return c.delayAfterSend }

func (c *Command) ReceiveTimeout() *time.Duration { return c.receiveTimeout }

func (c *Command) RequestValidators() []channel.Validator { return c.requestValidators }

func (c *Command) ResponseValidators() []ResponseValidator { return c.responseValidators }

func (c *Command) ResponseHandlers() []ResponseHandler { return c.responseHandlers }

// SetRequest replaces the request between executions
func (c *Command) SetRequest(request channel.Request) { c.request = request }

// Execute runs the command. retryCount is the number of extra attempts
// allowed for failing channel calls; negative values count as zero.
// onRetry, if not nil, receives the running retry count before each retry.
//
// Channel errors are returned unchanged once the budget is spent.
// Validation and configuration errors are never retried. A done ctx is
// checked before every attempt and during the post-send delay.
func (c *Command) Execute(ctx context.Context, retryCount int, onRetry func(int)) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}

	executionID := uuid.NewString()
	ctx = logging.ContextWithExecutionID(ctx, executionID)
	ctx, span := c.tracer.StartSpan(ctx, "command.execute", trace.WithAttributes(
		attribute.String("command.mode", c.mode.String()),
		attribute.String("command.execution_id", executionID),
		attribute.Int("command.retry_budget", retryCount),
	))
	logger := c.logger.WithContext(ctx).WithFields(logging.String("mode", c.mode.String()))

	start := time.Now()
	retries := 0
	c.response = nil

	defer func() {
		duration := time.Since(start)
		c.recorder.RecordExecution(c.mode, duration, retries, err)
		span.SetAttributes(attribute.Int("command.retries", retries))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			fields := []logging.Field{
				logging.Int("retries", retries),
				logging.Duration("duration", duration),
			}
			if commerrors.IsValidation(err) {
				fields = append(fields, logging.String("stage", validationStage(err)))
			}
			logger.WithError(err).Warn("command failed", fields...)
		} else {
			span.SetStatus(codes.Ok, "")
			logger.Debug("command completed",
				logging.Int("retries", retries),
				logging.Duration("duration", duration),
			)
		}
		span.End()
	}()

	ectx := &commerrors.Context{ExecutionID: executionID, Mode: c.mode.String(), Component: component}

	if c.channel == nil {
		return withContext(commerrors.MissingChannel(), ectx, "execute")
	}
	if !c.mode.Valid() {
		return withContext(commerrors.UnsupportedMode(c.mode), ectx, "execute")
	}

	if c.mode.SendsData() {
		if err := c.prepareRequest(); err != nil {
			if commerrors.IsValidation(err) {
				c.recorder.RecordValidationFailure(c.mode, validationStage(err))
			}
			return withContext(err, ectx, "prepare_request")
		}
		logger.Debug("request prepared", logging.Hex("request", c.request.Data()))
	}

	response, err := c.exchange(ctx, retryCount, onRetry, &retries, logger)
	if err != nil {
		return err
	}
	if response == nil {
		return nil
	}

	p := &pipeline{
		handlers:  c.responseHandlers,
		maxPasses: c.maxHandlerPasses,
		request:   c.request,
		channel:   c.channel,
		timeout:   c.receiveTimeout,
	}
	response, err = p.run(ctx, response)
	if err != nil {
		// handler errors pass through untouched; only pipeline faults get context
		if commerrors.IsCode(err, commerrors.CodeHandlerLoop) || commerrors.IsCode(err, commerrors.CodeInvalidHandlerResult) {
			return withContext(err, ectx, "handle_response")
		}
		return err
	}

	if err := validateResponse(c.responseValidators, response, c.request); err != nil {
		c.recorder.RecordValidationFailure(c.mode, StageResponse)
		return withContext(err, ectx, "validate_response")
	}

	logger.Debug("response accepted", logging.Hex("response", response.Data()))
	c.response = response
	return nil
}

// prepareRequest validates the request and merges its additional data
func (c *Command) prepareRequest() error {
	if c.request == nil || len(c.request.Data()) == 0 {
		return commerrors.EmptyRequest()
	}
	if err := validateRequest(c.requestValidators, c.request.Data()); err != nil {
		return err
	}
	return mergeAdditionalData(c.request)
}

// exchange runs the channel operation until it succeeds, the retry budget
// is spent or ctx is done
func (c *Command) exchange(ctx context.Context, retryCount int, onRetry func(int), retries *int, logger logging.Logger) (channel.Response, error) {
	if retryCount < 0 {
		retryCount = 0
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, commerrors.Cancelled("execute", err)
		}

		response, err := c.invoke(ctx)
		if err == nil {
			if err := c.pause(ctx); err != nil {
				return nil, err
			}
			return response, nil
		}

		if retryCount <= 0 {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, commerrors.Cancelled("execute", ctxErr)
		}

		retryCount--
		*retries++
		c.recorder.RecordRetry(c.mode, *retries, err)
		c.tracer.AddEvent(ctx, "command.retry",
			attribute.Int("command.attempt", attempt),
			attribute.Int("command.retries_left", retryCount),
			attribute.String("error", err.Error()),
		)
		logger.Warn("channel operation failed, retrying",
			logging.Int("attempt", attempt),
			logging.Int("retries_left", retryCount),
			logging.ErrorField(err),
		)
		if onRetry != nil {
			onRetry(*retries)
		}
	}
}

func (c *Command) invoke(ctx context.Context) (channel.Response, error) {
	switch c.mode {
	case ModeSendReceive:
		return c.channel.SendReceive(ctx, c.request, c.receiveTimeout)
	case ModeSend:
		return nil, c.channel.Send(ctx, c.request)
	case ModeReceive:
		return c.channel.Receive(ctx, c.receiveTimeout)
	default:
		return nil, commerrors.UnsupportedMode(c.mode)
	}
}

// pause applies the post-send delay
func (c *Command) pause(ctx context.Context) error {
	if c.delayAfterSend <= 0 {
		return nil
	}
	timer := time.NewTimer(c.delayAfterSend)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return commerrors.Cancelled("delay_after_send", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func withContext(err error, ectx *commerrors.Context, operation string) error {
	commErr, ok := err.(commerrors.CommError)
	if !ok {
		return err
	}
	c := *ectx
	c.Operation = operation
	return commErr.WithContext(&c)
}

func validationStage(err error) string {
	if commErr, ok := commerrors.AsCommError(err); ok {
		if data, ok := commErr.Data().(*commerrors.ValidationErrorData); ok {
			return data.Stage
		}
	}
	return StageRequest
}
