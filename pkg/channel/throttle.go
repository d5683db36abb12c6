package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// ThrottleConfig paces channel I/O with a token bucket
type ThrottleConfig struct {
	Enabled bool    `json:"enabled" toml:"enabled" yaml:"enabled"`
	PerSec  float64 `json:"per_second" toml:"per_second" yaml:"per_second"`
	Burst   int     `json:"burst" toml:"burst" yaml:"burst"`
	// MaxWait bounds how long a call waits for a token. Zero waits until ctx is done.
	MaxWait time.Duration `json:"max_wait" toml:"max_wait" yaml:"max_wait"`
}

// DefaultThrottleConfig allows 20 operations per second with a burst of 5
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Enabled: true,
		PerSec:  20,
		Burst:   5,
	}
}

// TokenBucket is a refilling token bucket shared by every operation of a channel
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSec     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket
func NewTokenBucket(perSec float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	b := &TokenBucket{
		capacity: float64(burst),
		perSec:   perSec,
		now:      time.Now,
	}
	b.tokens = b.capacity
	b.lastRefill = b.now()
	return b
}

// Take consumes a token if one is available. Otherwise it returns how long
// until the next token is due.
func (b *TokenBucket) Take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens = min(b.tokens+now.Sub(b.lastRefill).Seconds()*b.perSec, b.capacity)
	b.lastRefill = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	if b.perSec <= 0 {
		return false, -1
	}
	return false, time.Duration((1.0 - b.tokens) / b.perSec * float64(time.Second))
}

// Remaining returns the tokens currently available
func (b *TokenBucket) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Wait blocks until a token is taken, ctx is done or maxWait elapses
func (b *TokenBucket) Wait(ctx context.Context, op string, maxWait time.Duration) error {
	var deadline <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, delay := b.Take()
		if ok {
			return nil
		}
		if delay < 0 {
			return commerrors.ChannelThrottled(op, fmt.Errorf("token bucket has no refill rate"))
		}

		wait := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return commerrors.Cancelled(op, ctx.Err())
		case <-deadline:
			wait.Stop()
			return commerrors.ChannelThrottled(op, fmt.Errorf("no token within %s", maxWait))
		case <-wait.C:
		}
	}
}

// NewThrottleMiddleware returns middleware pacing Send, Receive and
// SendReceive through one token bucket
func NewThrottleMiddleware(config ThrottleConfig) Middleware {
	return MiddlewareFunc(func(ch Channel) Channel {
		if !config.Enabled {
			return ch
		}
		return &throttleChannel{
			Delegate: Delegate{Next: ch},
			bucket:   NewTokenBucket(config.PerSec, config.Burst),
			maxWait:  config.MaxWait,
		}
	})
}

type throttleChannel struct {
	Delegate
	bucket  *TokenBucket
	maxWait time.Duration
}

func (c *throttleChannel) Send(ctx context.Context, request Request) error {
	if err := c.bucket.Wait(ctx, OpSend, c.maxWait); err != nil {
		return err
	}
	return c.Next.Send(ctx, request)
}

func (c *throttleChannel) Receive(ctx context.Context, timeout *time.Duration) (Response, error) {
	if err := c.bucket.Wait(ctx, OpReceive, c.maxWait); err != nil {
		return nil, err
	}
	return c.Next.Receive(ctx, timeout)
}

func (c *throttleChannel) SendReceive(ctx context.Context, request Request, timeout *time.Duration) (Response, error) {
	if err := c.bucket.Wait(ctx, OpSendReceive, c.maxWait); err != nil {
		return nil, err
	}
	return c.Next.SendReceive(ctx, request, timeout)
}
