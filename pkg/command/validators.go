package command

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// ValidatorFunc adapts a predicate to channel.Validator
type ValidatorFunc struct {
	Check       func(data []byte) bool
	Optional    bool
	Description string
}

func (v ValidatorFunc) Validate(data []byte) bool { return v.Check(data) }

func (v ValidatorFunc) IsOptional() bool { return v.Optional }

func (v ValidatorFunc) ErrorDescription() string { return v.Description }

// ResponseValidatorFunc adapts a predicate to ResponseValidator
type ResponseValidatorFunc struct {
	Check       func(response channel.Response, request channel.Request) bool
	Optional    bool
	Description string
}

func (v ResponseValidatorFunc) Validate(response channel.Response, request channel.Request) bool {
	return v.Check(response, request)
}

func (v ResponseValidatorFunc) IsOptional() bool { return v.Optional }

func (v ResponseValidatorFunc) ErrorDescription() string { return v.Description }

// ResponseHandlerFunc adapts a function to ResponseHandler
type ResponseHandlerFunc func(ctx context.Context, response channel.Response, request channel.Request, ch channel.Channel, receiveTimeout *time.Duration) (HandlerResult, error)

func (f ResponseHandlerFunc) Handle(ctx context.Context, response channel.Response, request channel.Request, ch channel.Channel, receiveTimeout *time.Duration) (HandlerResult, error) {
	return f(ctx, response, request, ch, receiveTimeout)
}

// ParserFunc adapts a function to Parser
type ParserFunc func(response channel.Response) ([]byte, error)

func (f ParserFunc) Parse(response channel.Response) ([]byte, error) { return f(response) }

// ConverterFunc adapts a function to Converter
type ConverterFunc[T any] func(data []byte) (T, error)

func (f ConverterFunc[T]) Convert(data []byte) (T, error) { return f(data) }

// MinLength accepts payloads of at least n bytes
func MinLength(n int) ValidatorFunc {
	return ValidatorFunc{
		Check:       func(data []byte) bool { return len(data) >= n },
		Description: fmt.Sprintf("Payload shorter than %d bytes", n),
	}
}

// HasPrefix accepts payloads starting with prefix
func HasPrefix(prefix []byte) ValidatorFunc {
	return ValidatorFunc{
		Check:       func(data []byte) bool { return bytes.HasPrefix(data, prefix) },
		Description: fmt.Sprintf("Payload does not start with % X", prefix),
	}
}

// EchoesRequestPrefix accepts responses whose first n bytes repeat the
// request's first n bytes
func EchoesRequestPrefix(n int) ResponseValidatorFunc {
	return ResponseValidatorFunc{
		Check: func(response channel.Response, request channel.Request) bool {
			if request == nil || len(request.Data()) < n || len(response.Data()) < n {
				return false
			}
			return bytes.Equal(response.Data()[:n], request.Data()[:n])
		},
		Description: fmt.Sprintf("Response does not echo the first %d request bytes", n),
	}
}

// RangeParser drops skip leading and trim trailing bytes, such as a header
// and a checksum
func RangeParser(skip, trim int) ParserFunc {
	return func(response channel.Response) ([]byte, error) {
		data := response.Data()
		if skip < 0 || trim < 0 || len(data) < skip+trim {
			return nil, commerrors.InvalidCommandResponse(
				fmt.Sprintf("Response of %d bytes is too short to drop %d leading and %d trailing bytes", len(data), skip, trim), nil)
		}
		return data[skip : len(data)-trim], nil
	}
}

// ContinueWhile returns a handler that, while partial reports the response
// incomplete, receives another frame from the channel and appends it
func ContinueWhile(partial func(data []byte) bool) ResponseHandlerFunc {
	return func(ctx context.Context, response channel.Response, _ channel.Request, ch channel.Channel, timeout *time.Duration) (HandlerResult, error) {
		if !partial(response.Data()) {
			return HandlerResult{State: Unhandled}, nil
		}
		next, err := ch.Receive(ctx, timeout)
		if err != nil {
			return HandlerResult{}, err
		}
		merged := make([]byte, 0, len(response.Data())+len(next.Data()))
		merged = append(merged, response.Data()...)
		merged = append(merged, next.Data()...)
		return HandlerResult{State: ResponseChanged, Response: channel.NewResponse(merged)}, nil
	}
}

// SkipWhile returns a handler that discards interim responses, such as
// "busy" notices, and receives the next one in their place
func SkipWhile(interim func(data []byte) bool) ResponseHandlerFunc {
	return func(ctx context.Context, response channel.Response, _ channel.Request, ch channel.Channel, timeout *time.Duration) (HandlerResult, error) {
		if !interim(response.Data()) {
			return HandlerResult{State: Unhandled}, nil
		}
		next, err := ch.Receive(ctx, timeout)
		if err != nil {
			return HandlerResult{}, err
		}
		return HandlerResult{State: ResponseChanged, Response: next}, nil
	}
}
