package channel

import (
	"context"
	"os"
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Sentinel faults a channel implementation may return (or wrap) so that the
// classify middleware can map them onto the command fault taxonomy.
var (
	ErrNotSupported    = commerrors.New("channel: command not supported")
	ErrInvalidResponse = commerrors.New("channel: invalid response")
	ErrClosed          = commerrors.New("channel: closed")
)

// Classifier maps a raw channel fault to a CommError. op is one of the Op* names.
type Classifier func(op string, err error) commerrors.CommError

// DefaultClassifier leaves CommErrors alone and sorts everything else into
// timeout, not-supported, invalid-response or generic failure.
func DefaultClassifier(op string, err error) commerrors.CommError {
	if err == nil {
		return nil
	}
	if commErr, ok := commerrors.AsCommError(err); ok {
		return commErr
	}

	switch {
	case commerrors.Is(err, context.Canceled):
		return commerrors.Cancelled(op, err)
	case commerrors.Is(err, context.DeadlineExceeded), commerrors.Is(err, os.ErrDeadlineExceeded):
		return commerrors.CommandTimeout("", err)
	case commerrors.Is(err, ErrNotSupported):
		return commerrors.CommandNotSupported("", err)
	case commerrors.Is(err, ErrInvalidResponse):
		return commerrors.InvalidCommandResponse("", err)
	case commerrors.Is(err, ErrClosed):
		return commerrors.ChannelUnavailable(op, err.Error(), err)
	}
	return commerrors.CommandFailed(err.Error(), err)
}

// NewClassifyMiddleware returns middleware that runs every channel error
// through classifier. A nil classifier uses DefaultClassifier.
func NewClassifyMiddleware(classifier Classifier) Middleware {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return MiddlewareFunc(func(ch Channel) Channel {
		return &classifyChannel{Delegate: Delegate{Next: ch}, classify: classifier}
	})
}

type classifyChannel struct {
	Delegate
	classify Classifier
}

func (c *classifyChannel) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if classified := c.classify(op, err); classified != nil {
		return classified
	}
	return err
}

func (c *classifyChannel) Open(ctx context.Context) error {
	return c.wrap(OpOpen, c.Next.Open(ctx))
}

func (c *classifyChannel) Close(ctx context.Context) error {
	return c.wrap(OpClose, c.Next.Close(ctx))
}

func (c *classifyChannel) Send(ctx context.Context, request Request) error {
	return c.wrap(OpSend, c.Next.Send(ctx, request))
}

func (c *classifyChannel) Receive(ctx context.Context, timeout *time.Duration) (Response, error) {
	resp, err := c.Next.Receive(ctx, timeout)
	return resp, c.wrap(OpReceive, err)
}

func (c *classifyChannel) SendReceive(ctx context.Context, request Request, timeout *time.Duration) (Response, error) {
	resp, err := c.Next.SendReceive(ctx, request, timeout)
	return resp, c.wrap(OpSendReceive, err)
}

func (c *classifyChannel) SetConfiguration(ctx context.Context, config Configuration) error {
	return c.wrap(OpSetConfiguration, c.Next.SetConfiguration(ctx, config))
}

func (c *classifyChannel) StartPeriodicMessage(ctx context.Context, request Request, interval time.Duration) (PeriodicHandle, error) {
	handle, err := c.Next.StartPeriodicMessage(ctx, request, interval)
	return handle, c.wrap(OpStartPeriodic, err)
}

func (c *classifyChannel) StopPeriodicMessage(ctx context.Context, handle PeriodicHandle) error {
	return c.wrap(OpStopPeriodic, c.Next.StopPeriodicMessage(ctx, handle))
}
