package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Interface creates memory channels sharing one lifecycle
type Interface struct {
	mu       sync.Mutex
	open     bool
	opts     []Option
	channels []*Channel
}

// NewInterface returns a closed interface. Channels it creates get opts.
func NewInterface(opts ...Option) *Interface {
	return &Interface{opts: opts}
}

func (i *Interface) Open(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.open = true
	return nil
}

// Close closes every channel created so far
func (i *Interface) Close(ctx context.Context) error {
	i.mu.Lock()
	channels := i.channels
	i.channels = nil
	i.open = false
	i.mu.Unlock()

	errs := make([]error, 0, len(channels))
	for _, ch := range channels {
		errs = append(errs, ch.Close(ctx))
	}
	if err := commerrors.CombineErrors(errs); err != nil {
		return err
	}
	return nil
}

func (i *Interface) IsOpen(ctx context.Context) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.open, nil
}

// CreateChannel returns a new open channel carrying config
func (i *Interface) CreateChannel(ctx context.Context, config channel.Configuration) (channel.Channel, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.open {
		return nil, fmt.Errorf("memory: create channel %q: %w", config.Name, channel.ErrClosed)
	}

	ch := New(i.opts...)
	if err := ch.SetConfiguration(ctx, config); err != nil {
		return nil, err
	}
	i.channels = append(i.channels, ch)
	return ch, nil
}

// Channels returns the channels created since the interface was last closed
func (i *Interface) Channels() []*Channel {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*Channel(nil), i.channels...)
}
