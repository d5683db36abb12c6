package command

import (
	"context"
	"reflect"

	"github.com/stilsoft/commkit/pkg/channel"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

// Parser extracts the meaningful bytes of a response, such as the payload
// between a header and a checksum
type Parser interface {
	Parse(response channel.Response) ([]byte, error)
}

// Converter turns parsed bytes into a result value
type Converter[T any] interface {
	Convert(data []byte) (T, error)
}

// ResultExecutor is an Executor that produces a typed result
type ResultExecutor[T any] interface {
	Executor
	Result() T
}

// TypedCommand runs a Command and converts its response into a T
type TypedCommand[T any] struct {
	*Command
	parser    Parser
	converter Converter[T]
	result    T
}

// NewTyped creates a typed command bound to ch. A nil parser uses the raw
// response bytes. A nil converter only works when T is []byte.
func NewTyped[T any](ch channel.Channel, parser Parser, converter Converter[T], opts ...Option) *TypedCommand[T] {
	return &TypedCommand[T]{
		Command:   New(ch, opts...),
		parser:    parser,
		converter: converter,
	}
}

// Wrap adds parsing and conversion to an existing command
func Wrap[T any](cmd *Command, parser Parser, converter Converter[T]) *TypedCommand[T] {
	return &TypedCommand[T]{Command: cmd, parser: parser, converter: converter}
}

func (t *TypedCommand[T]) Parser() Parser { return t.parser }

func (t *TypedCommand[T]) Converter() Converter[T] { return t.converter }

// Result returns the value produced by the last successful execution
func (t *TypedCommand[T]) Result() T { return t.result }

// Execute runs the underlying command, then parses and converts the
// response. Commands that produce no response leave Result at its zero value.
func (t *TypedCommand[T]) Execute(ctx context.Context, retryCount int, onRetry func(int)) error {
	var zero T
	t.result = zero

	if err := t.Command.Execute(ctx, retryCount, onRetry); err != nil {
		return err
	}

	response := t.Command.Response()
	if response == nil {
		return nil
	}

	data := response.Data()
	if t.parser != nil {
		parsed, err := t.parser.Parse(response)
		if err != nil {
			return err
		}
		data = parsed
	}

	result, err := t.convert(data)
	if err != nil {
		return err
	}
	t.result = result
	return nil
}

func (t *TypedCommand[T]) convert(data []byte) (T, error) {
	if t.converter != nil {
		return t.converter.Convert(data)
	}

	// identity only: an interface T would accept the bytes without converting them
	target := reflect.TypeOf((*T)(nil)).Elem()
	if target == bytesType {
		return any(data).(T), nil
	}
	var zero T
	return zero, commerrors.UnsupportedConversion(target.String())
}

var bytesType = reflect.TypeOf([]byte(nil))
