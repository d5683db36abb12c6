package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/channel/memory"
	commerrors "github.com/stilsoft/commkit/pkg/errors"
)

func TestBuiltinValidators(t *testing.T) {
	tests := []struct {
		name      string
		validator channel.Validator
		data      []byte
		want      bool
	}{
		{"min length ok", MinLength(2), []byte{1, 2}, true},
		{"min length short", MinLength(3), []byte{1, 2}, false},
		{"prefix ok", HasPrefix([]byte{0xAA, 0x55}), []byte{0xAA, 0x55, 1}, true},
		{"prefix mismatch", HasPrefix([]byte{0xAA, 0x55}), []byte{0xAA, 0x00}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.validator.Validate(tt.data))
			assert.False(t, tt.validator.IsOptional())
			assert.NotEmpty(t, tt.validator.ErrorDescription())
		})
	}

	assert.Equal(t, "Payload does not start with AA 55", HasPrefix([]byte{0xAA, 0x55}).ErrorDescription())
}

func TestEchoesRequestPrefix(t *testing.T) {
	v := EchoesRequestPrefix(2)
	req := channel.NewRequest([]byte{0x10, 0x20, 0x30})

	assert.True(t, v.Validate(channel.NewResponse([]byte{0x10, 0x20, 0xFF}), req))
	assert.False(t, v.Validate(channel.NewResponse([]byte{0x10, 0x21}), req))
	assert.False(t, v.Validate(channel.NewResponse([]byte{0x10}), req))
	assert.False(t, v.Validate(channel.NewResponse([]byte{0x10, 0x20}), nil))
}

func TestRangeParser(t *testing.T) {
	data, err := RangeParser(1, 2).Parse(channel.NewResponse([]byte{0, 1, 2, 3, 4}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)

	data, err = RangeParser(0, 0).Parse(channel.NewResponse([]byte{}))
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = RangeParser(-1, 0).Parse(channel.NewResponse([]byte{1}))
	assert.True(t, commerrors.IsCode(err, commerrors.CodeInvalidCommandResponse))
}

func TestHandlerHelpersPropagateReceiveErrors(t *testing.T) {
	boom := errors.New("no more frames")
	mem := memory.New()
	mem.EnqueueResponse([]byte("A"))
	mem.EnqueueError(boom)

	cmd := New(mem,
		WithRequest(channel.NewRequest([]byte{1})),
		WithResponseHandlers(ContinueWhile(func(data []byte) bool { return len(data) < 2 })),
	)

	err := cmd.Execute(context.Background(), 0, nil)
	assert.Equal(t, boom, err)
}

func TestHandlerHelpersIgnoreFinalResponses(t *testing.T) {
	h := SkipWhile(func(data []byte) bool { return string(data) == "BUSY" })

	result, err := h.Handle(context.Background(), channel.NewResponse([]byte("OK")), nil, memory.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, Unhandled, result.State)
	assert.Equal(t, "unhandled", result.State.String())
}
