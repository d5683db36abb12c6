package commkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/channel/memory"
	"github.com/stilsoft/commkit/pkg/command"
)

func TestRootExports(t *testing.T) {
	mem := memory.New()
	mem.EnqueueResponse([]byte{0x01, 0x42})

	ch := ChainMiddleware(channel.NewClassifyMiddleware(nil)).Wrap(mem)
	cmd := NewTypedCommand[byte](ch,
		command.RangeParser(1, 0),
		command.ConverterFunc[byte](func(b []byte) (byte, error) { return b[0], nil }),
		WithRequest(NewRequest([]byte{0x01})),
		WithResponseValidators(command.EchoesRequestPrefix(1)),
	)

	require.NoError(t, cmd.Execute(context.Background(), 0, nil))
	assert.Equal(t, byte(0x42), cmd.Result())
	assert.Equal(t, ModeSendReceive, cmd.Mode())
	assert.Equal(t, "complete", Complete.String())
}
