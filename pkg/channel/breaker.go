package channel

import (
	"context"
	"sync"
	"time"

	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// BreakerConfig configures the circuit breaker middleware
type BreakerConfig struct {
	Enabled          bool          `json:"enabled" toml:"enabled" yaml:"enabled"`
	FailureThreshold int           `json:"failure_threshold" toml:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" toml:"success_threshold" yaml:"success_threshold"`
	Timeout          time.Duration `json:"timeout" toml:"timeout" yaml:"timeout"`
}

// DefaultBreakerConfig opens after 5 consecutive failures and probes again after 30s
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// BreakerState is the state of a circuit breaker
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a consecutive-failure circuit breaker
type Breaker struct {
	config    BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// NewBreaker creates a closed breaker
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &Breaker{config: config, state: BreakerClosed, now: time.Now}
}

// State returns the current state, moving an expired open breaker to half-open
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

// Allow reports whether a call may go through
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state != BreakerOpen
}

func (b *Breaker) advance() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.config.Timeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
}

// Success records a successful call
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = BreakerClosed
		}
	}
}

// Failure records a failed call
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.config.FailureThreshold {
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}

// NewBreakerMiddleware returns middleware rejecting I/O while the breaker is
// open. Rejections are ChannelUnavailable transport errors, so the command
// retry loop still counts them as attempts. Cancellation and validation
// errors do not trip the breaker.
func NewBreakerMiddleware(config BreakerConfig) Middleware {
	return MiddlewareFunc(func(ch Channel) Channel {
		if !config.Enabled {
			return ch
		}
		return &breakerChannel{Delegate: Delegate{Next: ch}, breaker: NewBreaker(config)}
	})
}

type breakerChannel struct {
	Delegate
	breaker *Breaker
}

func (c *breakerChannel) guard(op string, call func() error) error {
	if !c.breaker.Allow() {
		return commerrors.ChannelUnavailable(op, "circuit breaker is open", nil)
	}
	err := call()
	switch {
	case err == nil:
		c.breaker.Success()
	case commerrors.IsCancelled(err), commerrors.IsValidation(err):
	default:
		c.breaker.Failure()
	}
	return err
}

func (c *breakerChannel) Send(ctx context.Context, request Request) error {
	return c.guard(OpSend, func() error { return c.Next.Send(ctx, request) })
}

func (c *breakerChannel) Receive(ctx context.Context, timeout *time.Duration) (Response, error) {
	var resp Response
	err := c.guard(OpReceive, func() error {
		var err error
		resp, err = c.Next.Receive(ctx, timeout)
		return err
	})
	return resp, err
}

func (c *breakerChannel) SendReceive(ctx context.Context, request Request, timeout *time.Duration) (Response, error) {
	var resp Response
	err := c.guard(OpSendReceive, func() error {
		var err error
		resp, err = c.Next.SendReceive(ctx, request, timeout)
		return err
	})
	return resp, err
}
