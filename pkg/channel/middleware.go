package channel

import (
	"context"
	"time"
)

// Middleware wraps a channel to add behaviour around its operations
type Middleware interface {
	Wrap(ch Channel) Channel
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(Channel) Channel

// Wrap implements the Middleware interface
func (f MiddlewareFunc) Wrap(ch Channel) Channel {
	return f(ch)
}

// Chain composes middleware so that the first one is the outermost
func Chain(middleware ...Middleware) Middleware {
	return MiddlewareFunc(func(ch Channel) Channel {
		for i := len(middleware) - 1; i >= 0; i-- {
			if middleware[i] != nil {
				ch = middleware[i].Wrap(ch)
			}
		}
		return ch
	})
}

// Delegate forwards every call to Next. Middleware embeds it and overrides
// only the operations it cares about.
type Delegate struct {
	Next Channel
}

func (d *Delegate) Open(ctx context.Context) error { return d.Next.Open(ctx) }

func (d *Delegate) Close(ctx context.Context) error { return d.Next.Close(ctx) }

func (d *Delegate) IsOpen(ctx context.Context) (bool, error) { return d.Next.IsOpen(ctx) }

func (d *Delegate) Send(ctx context.Context, request Request) error {
	return d.Next.Send(ctx, request)
}

func (d *Delegate) Receive(ctx context.Context, timeout *time.Duration) (Response, error) {
	return d.Next.Receive(ctx, timeout)
}

func (d *Delegate) SendReceive(ctx context.Context, request Request, timeout *time.Duration) (Response, error) {
	return d.Next.SendReceive(ctx, request, timeout)
}

func (d *Delegate) SetConfiguration(ctx context.Context, config Configuration) error {
	return d.Next.SetConfiguration(ctx, config)
}

func (d *Delegate) StartPeriodicMessage(ctx context.Context, request Request, interval time.Duration) (PeriodicHandle, error) {
	return d.Next.StartPeriodicMessage(ctx, request, interval)
}

func (d *Delegate) StopPeriodicMessage(ctx context.Context, handle PeriodicHandle) error {
	return d.Next.StopPeriodicMessage(ctx, handle)
}
