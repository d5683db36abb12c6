package command

import (
	"context"
	"fmt"
	"time"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// DefaultMaxHandlerPasses bounds how many times the handler pipeline may
// restart after a handler replaces the response
const DefaultMaxHandlerPasses = 16

// HandlerState is a handler's verdict on a response
type HandlerState int

const (
	// Unhandled passes the response on to the next handler
	Unhandled HandlerState = iota
	// ResponseChanged replaces the response and restarts the pipeline
	ResponseChanged
	// Complete accepts the returned response
	Complete
)

func (s HandlerState) String() string {
	switch s {
	case Unhandled:
		return "unhandled"
	case ResponseChanged:
		return "response_changed"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// HandlerResult is returned by a ResponseHandler
type HandlerResult struct {
	State    HandlerState
	Response channel.Response
}

// ResponseHandler inspects a response and may replace it, for example by
// reading follow-up frames from ch.
type ResponseHandler interface {
	Handle(ctx context.Context, response channel.Response, request channel.Request, ch channel.Channel, receiveTimeout *time.Duration) (HandlerResult, error)
}

// pipeline runs response handlers until one accepts a response or a pass
// ends with nobody acting
type pipeline struct {
	handlers  []ResponseHandler
	maxPasses int
	request   channel.Request
	channel   channel.Channel
	timeout   *time.Duration
}

func (p *pipeline) run(ctx context.Context, response channel.Response) (channel.Response, error) {
	if len(p.handlers) == 0 {
		return response, nil
	}

	maxPasses := p.maxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxHandlerPasses
	}

	for pass := 1; ; pass++ {
		result, err := p.pass(ctx, response)
		if err != nil {
			return nil, err
		}

		switch result.State {
		case Complete:
			return result.Response, nil
		case ResponseChanged:
			if pass >= maxPasses {
				return nil, commerrors.HandlerLoop(pass)
			}
			response = result.Response
		default:
			return response, nil
		}
	}
}

// pass walks the handlers once. The first handler that changes or completes
// the response ends the pass.
func (p *pipeline) pass(ctx context.Context, response channel.Response) (HandlerResult, error) {
	for i, h := range p.handlers {
		if err := ctx.Err(); err != nil {
			return HandlerResult{}, commerrors.Cancelled("handle_response", err)
		}

		result, err := h.Handle(ctx, response, p.request, p.channel, p.timeout)
		if err != nil {
			return HandlerResult{}, err
		}

		switch result.State {
		case Unhandled:
			continue
		case ResponseChanged, Complete:
			if result.Response == nil {
				return HandlerResult{}, commerrors.InvalidHandlerResult(i, result.State.String())
			}
			return result, nil
		default:
			return HandlerResult{}, commerrors.InvalidHandlerResult(i, result.State.String())
		}
	}
	return HandlerResult{State: Unhandled, Response: response}, nil
}
