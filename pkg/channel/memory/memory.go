// Package memory provides an in-process channel.Channel.
//
// A Channel answers requests from a script of queued steps, falling back to
// a Responder (echo by default) when the script is empty. Every payload that
// crosses the channel is recorded, which makes it suitable for tests and
// loopback examples.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/logging"
)

// Step is one scripted channel outcome
type Step struct {
	Response []byte
	Err      error
	// Delay is applied before the outcome. A receive timeout shorter than
	// Delay turns the step into a deadline error.
	Delay time.Duration
}

// Responder produces the response for a request when no step is queued.
// request is nil for Receive.
type Responder func(ctx context.Context, request []byte) ([]byte, error)

// Echo answers every request with its own payload
func Echo(_ context.Context, request []byte) ([]byte, error) {
	return append([]byte(nil), request...), nil
}

// Option configures a Channel
type Option func(*Channel)

// WithResponder replaces the echo responder
func WithResponder(r Responder) Option {
	return func(c *Channel) { c.responder = r }
}

// WithLogger sets the channel logger
func WithLogger(l logging.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithClosed creates the channel in the closed state
func WithClosed() Option {
	return func(c *Channel) { c.open = false }
}

// Channel is a scripted in-memory channel. It is safe for concurrent use.
type Channel struct {
	mu        sync.Mutex
	open      bool
	config    channel.Configuration
	script    []Step
	responder Responder
	logger    logging.Logger

	lastSent []byte
	sent     [][]byte
	calls    map[string]int

	periodic   map[channel.PeriodicHandle]*periodicTask
	nextHandle int
	group      *errgroup.Group
	groupCtx   context.Context
	stopGroup  context.CancelFunc
}

type periodicTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	ticks  int
}

// New creates an open channel
func New(opts ...Option) *Channel {
	c := &Channel{
		open:      true,
		responder: Echo,
		logger:    logging.NewNop(),
		calls:     make(map[string]int),
		periodic:  make(map[channel.PeriodicHandle]*periodicTask),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.open {
		c.startGroup()
	}
	return c
}

func (c *Channel) startGroup() {
	ctx, cancel := context.WithCancel(context.Background())
	c.group, c.groupCtx = errgroup.WithContext(ctx)
	c.stopGroup = cancel
}

// Enqueue appends scripted steps
func (c *Channel) Enqueue(steps ...Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, steps...)
}

// EnqueueResponse appends one successful step per payload
func (c *Channel) EnqueueResponse(payloads ...[]byte) {
	steps := make([]Step, len(payloads))
	for i, p := range payloads {
		steps[i] = Step{Response: p}
	}
	c.Enqueue(steps...)
}

// EnqueueError appends one failing step per error
func (c *Channel) EnqueueError(errs ...error) {
	steps := make([]Step, len(errs))
	for i, err := range errs {
		steps[i] = Step{Err: err}
	}
	c.Enqueue(steps...)
}

// Pending returns the number of scripted steps not yet consumed
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.script)
}

// Sent returns copies of every payload written by Send or SendReceive
func (c *Channel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	for i, p := range c.sent {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// Calls returns how many times op was invoked, including failed calls
func (c *Channel) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// TotalIO returns the number of Send, Receive and SendReceive calls
func (c *Channel) TotalIO() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[channel.OpSend] + c.calls[channel.OpReceive] + c.calls[channel.OpSendReceive]
}

// Configuration returns the last configuration set
func (c *Channel) Configuration() channel.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[channel.OpOpen]++
	if c.open {
		return nil
	}
	c.open = true
	c.startGroup()
	return nil
}

// Close stops every periodic message and waits for them to exit
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	c.calls[channel.OpClose]++
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	group, stop := c.group, c.stopGroup
	c.periodic = make(map[channel.PeriodicHandle]*periodicTask)
	c.mu.Unlock()

	stop()
	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (c *Channel) IsOpen(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open, nil
}

func (c *Channel) SetConfiguration(ctx context.Context, config channel.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[channel.OpSetConfiguration]++
	c.config = config
	return nil
}

// begin records the call and pops the next step, if any
func (c *Channel) begin(op string, request []byte) (Step, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++
	if !c.open {
		return Step{}, false, fmt.Errorf("memory: %s: %w", op, channel.ErrClosed)
	}
	if request != nil {
		cp := append([]byte(nil), request...)
		c.sent = append(c.sent, cp)
		c.lastSent = cp
	}
	if len(c.script) == 0 {
		return Step{}, false, nil
	}
	step := c.script[0]
	c.script = c.script[1:]
	return step, true, nil
}

func wait(ctx context.Context, op string, delay time.Duration, timeout *time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	expired := false
	if timeout != nil && *timeout < delay {
		delay, expired = *timeout, true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	if expired {
		return fmt.Errorf("memory: %s: %w", op, os.ErrDeadlineExceeded)
	}
	return nil
}

func (c *Channel) respond(ctx context.Context, op string, request []byte, timeout *time.Duration) (channel.Response, error) {
	step, scripted, err := c.begin(op, request)
	if err != nil {
		return nil, err
	}

	if scripted {
		if err := wait(ctx, op, step.Delay, timeout); err != nil {
			return nil, err
		}
		if step.Err != nil {
			return nil, step.Err
		}
		c.logger.Debug("memory channel replied from script", logging.String("operation", op), logging.Hex("response", step.Response))
		return channel.NewResponse(append([]byte(nil), step.Response...)), nil
	}

	if request == nil {
		c.mu.Lock()
		request = c.lastSent
		c.mu.Unlock()
	}
	data, err := c.responder(ctx, request)
	if err != nil {
		return nil, err
	}
	return channel.NewResponse(data), nil
}

// Send consumes a scripted step, if any, and reports only its error
func (c *Channel) Send(ctx context.Context, request channel.Request) error {
	step, scripted, err := c.begin(channel.OpSend, requestData(request))
	if err != nil || !scripted {
		return err
	}
	if err := wait(ctx, channel.OpSend, step.Delay, nil); err != nil {
		return err
	}
	return step.Err
}

// Receive returns the next scripted response, or the responder's answer to
// the last sent payload
func (c *Channel) Receive(ctx context.Context, timeout *time.Duration) (channel.Response, error) {
	return c.respond(ctx, channel.OpReceive, nil, timeout)
}

func (c *Channel) SendReceive(ctx context.Context, request channel.Request, timeout *time.Duration) (channel.Response, error) {
	return c.respond(ctx, channel.OpSendReceive, requestData(request), timeout)
}

func requestData(request channel.Request) []byte {
	if request == nil || request.Data() == nil {
		return []byte{}
	}
	return request.Data()
}

// StartPeriodicMessage sends request every interval until stopped or the
// channel is closed. Periodic sends are recorded but do not consume steps.
func (c *Channel) StartPeriodicMessage(ctx context.Context, request channel.Request, interval time.Duration) (channel.PeriodicHandle, error) {
	if interval <= 0 {
		return "", fmt.Errorf("memory: periodic interval must be positive, got %s", interval)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[channel.OpStartPeriodic]++
	if !c.open {
		return "", fmt.Errorf("memory: %s: %w", channel.OpStartPeriodic, channel.ErrClosed)
	}

	c.nextHandle++
	handle := channel.PeriodicHandle(fmt.Sprintf("periodic-%d", c.nextHandle))
	taskCtx, cancel := context.WithCancel(c.groupCtx)
	task := &periodicTask{cancel: cancel, done: make(chan struct{})}
	c.periodic[handle] = task
	payload := append([]byte(nil), requestData(request)...)

	c.group.Go(func() error {
		defer close(task.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-taskCtx.Done():
				return nil
			case <-ticker.C:
				c.mu.Lock()
				c.sent = append(c.sent, append([]byte(nil), payload...))
				task.ticks++
				c.mu.Unlock()
			}
		}
	})

	c.logger.Debug("periodic message started",
		logging.String("handle", string(handle)),
		logging.Duration("interval", interval),
	)
	return handle, nil
}

// StopPeriodicMessage stops a periodic message and waits for it to exit
func (c *Channel) StopPeriodicMessage(ctx context.Context, handle channel.PeriodicHandle) error {
	c.mu.Lock()
	c.calls[channel.OpStopPeriodic]++
	task, ok := c.periodic[handle]
	delete(c.periodic, handle)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("memory: unknown periodic handle %q", handle)
	}

	task.cancel()
	select {
	case <-task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PeriodicTicks returns how many times a running periodic message has fired
func (c *Channel) PeriodicTicks(handle channel.PeriodicHandle) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if task, ok := c.periodic[handle]; ok {
		return task.ticks
	}
	return 0
}
