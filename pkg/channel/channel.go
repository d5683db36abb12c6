// Package channel defines the transport contract commands are executed over.
//
// A Channel moves opaque byte payloads; it knows nothing about framing,
// validation or retries. Concrete implementations (sockets, serial ports,
// test doubles) live outside this package. Middleware wraps a Channel to add
// cross-cutting behaviour such as fault classification, circuit breaking,
// throttling and observability.
//
// Usage:
//
//	ch := channel.Chain(
//	    channel.NewClassifyMiddleware(nil),
//	    channel.NewBreakerMiddleware(channel.DefaultBreakerConfig()),
//	).Wrap(device)
package channel

import (
	"context"
	"time"
)

// Request is an outgoing payload. SetData is used when additional data is
// merged into the payload before sending.
type Request interface {
	Data() []byte
	SetData(data []byte)
}

// RequestWithAdditionalData is a request carrying auxiliary segments that are
// overlaid onto the payload before it is sent.
type RequestWithAdditionalData interface {
	Request
	AdditionalData() []AdditionalData
}

// Response is an incoming payload
type Response interface {
	Data() []byte
}

// Validator is a predicate over a byte payload
type Validator interface {
	Validate(data []byte) bool
	IsOptional() bool
	ErrorDescription() string
}

// AdditionalData is a byte segment written into the request payload at StartIndex
type AdditionalData struct {
	Data       []byte
	StartIndex int
	Validator  Validator
}

// Configuration is passed through to channel implementations untouched
type Configuration struct {
	Name    string            `json:"name" toml:"name" yaml:"name"`
	Address string            `json:"address,omitempty" toml:"address" yaml:"address"`
	Timeout time.Duration     `json:"timeout,omitempty" toml:"timeout" yaml:"timeout"`
	Options map[string]string `json:"options,omitempty" toml:"options" yaml:"options"`
}

// PeriodicHandle identifies a running periodic message
type PeriodicHandle string

// Channel is the bidirectional transport a command is executed over.
// Implementations decide their own concurrency contract; the engine never
// calls a channel while holding a lock of its own.
type Channel interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	IsOpen(ctx context.Context) (bool, error)

	Send(ctx context.Context, request Request) error
	// Receive waits for one response. A nil timeout means the channel default.
	Receive(ctx context.Context, timeout *time.Duration) (Response, error)
	// SendReceive sends request and waits for the matching response.
	SendReceive(ctx context.Context, request Request, timeout *time.Duration) (Response, error)

	SetConfiguration(ctx context.Context, config Configuration) error

	StartPeriodicMessage(ctx context.Context, request Request, interval time.Duration) (PeriodicHandle, error)
	StopPeriodicMessage(ctx context.Context, handle PeriodicHandle) error
}

// Interface is a factory for channels sharing one physical link
type Interface interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	IsOpen(ctx context.Context) (bool, error)
	CreateChannel(ctx context.Context, config Configuration) (Channel, error)
}

// BasicRequest is a byte-slice Request with optional additional data
type BasicRequest struct {
	data       []byte
	additional []AdditionalData
}

// NewRequest creates a request over data. The slice is not copied.
func NewRequest(data []byte, additional ...AdditionalData) *BasicRequest {
	return &BasicRequest{data: data, additional: additional}
}

func (r *BasicRequest) Data() []byte { return r.data }

func (r *BasicRequest) SetData(data []byte) { r.data = data }

func (r *BasicRequest) AdditionalData() []AdditionalData { return r.additional }

// BasicResponse is a byte-slice Response
type BasicResponse struct {
	data []byte
}

// NewResponse creates a response over data. The slice is not copied.
func NewResponse(data []byte) *BasicResponse {
	return &BasicResponse{data: data}
}

func (r *BasicResponse) Data() []byte { return r.data }

// Operation names used in errors, logs and metrics
const (
	OpOpen             = "open"
	OpClose            = "close"
	OpSend             = "send"
	OpReceive          = "receive"
	OpSendReceive      = "send_receive"
	OpSetConfiguration = "set_configuration"
	OpStartPeriodic    = "start_periodic"
	OpStopPeriodic     = "stop_periodic"
)
