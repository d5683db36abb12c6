// Package commkit executes byte-level commands over pluggable channels
package commkit

import (
	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/command"
)

// Version represents the current version of the module
const Version = "0.1.0"

// These exports provide direct access to the core components
var (
	// NewCommand creates an untyped command bound to a channel
	NewCommand = command.New

	// NewRequest creates a request with optional additional data segments
	NewRequest = channel.NewRequest

	// NewResponse wraps a received payload
	NewResponse = channel.NewResponse

	// ChainMiddleware composes channel middleware, first outermost
	ChainMiddleware = channel.Chain
)

// Execution modes
const (
	ModeSendReceive = command.ModeSendReceive
	ModeSend        = command.ModeSend
	ModeReceive     = command.ModeReceive
)

// Response handler states
const (
	Unhandled       = command.Unhandled
	ResponseChanged = command.ResponseChanged
	Complete        = command.Complete
)

// Command options
var (
	WithMode               = command.WithMode
	WithRequest            = command.WithRequest
	WithDelayAfterSend     = command.WithDelayAfterSend
	WithReceiveTimeout     = command.WithReceiveTimeout
	WithRequestValidators  = command.WithRequestValidators
	WithResponseValidators = command.WithResponseValidators
	WithResponseHandlers   = command.WithResponseHandlers
	WithMaxHandlerPasses   = command.WithMaxHandlerPasses
	WithLogger             = command.WithLogger
	WithRecorder           = command.WithRecorder
	WithTracer             = command.WithTracer
	WithConfig             = command.WithConfig
)

// NewTypedCommand creates a command that parses and converts its response to T
func NewTypedCommand[T any](ch channel.Channel, parser command.Parser, converter command.Converter[T], opts ...command.Option) *command.TypedCommand[T] {
	return command.NewTyped[T](ch, parser, converter, opts...)
}
