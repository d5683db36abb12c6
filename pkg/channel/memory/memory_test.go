package memory

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stilsoft/commkit/pkg/channel"
	"github.com/stilsoft/commkit/pkg/utils"
)

func TestChannelEcho(t *testing.T) {
	ch := New()
	ctx := context.Background()

	resp, err := ch.SendReceive(ctx, channel.NewRequest([]byte{0x10, 0x20}), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20}, resp.Data())

	require.NoError(t, ch.Send(ctx, channel.NewRequest([]byte{0x30})))
	resp, err = ch.Receive(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x30}, resp.Data())

	assert.Equal(t, [][]byte{{0x10, 0x20}, {0x30}}, ch.Sent())
	assert.Equal(t, 3, ch.TotalIO())
}

func TestChannelScript(t *testing.T) {
	ch := New()
	ctx := context.Background()
	boom := errors.New("boom")

	ch.EnqueueError(boom)
	ch.EnqueueResponse([]byte("OK"))
	assert.Equal(t, 2, ch.Pending())

	_, err := ch.SendReceive(ctx, channel.NewRequest([]byte("AT")), nil)
	assert.ErrorIs(t, err, boom)

	resp, err := ch.SendReceive(ctx, channel.NewRequest([]byte("AT")), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("OK"), resp.Data())
	assert.Equal(t, 0, ch.Pending())
	assert.Equal(t, 2, ch.Calls(channel.OpSendReceive))
}

func TestChannelResponsesAreCopies(t *testing.T) {
	ch := New()
	payload := []byte{1, 2, 3}
	ch.EnqueueResponse(payload, payload)

	first, err := ch.Receive(context.Background(), nil)
	require.NoError(t, err)
	first.Data()[0] = 0xff

	second, err := ch.Receive(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, second.Data())
}

func TestChannelReceiveTimeout(t *testing.T) {
	ch := New()
	ch.Enqueue(Step{Response: []byte{1}, Delay: time.Second})

	timeout := 10 * time.Millisecond
	_, err := ch.Receive(context.Background(), &timeout)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestChannelDelayHonoursContext(t *testing.T) {
	ch := New()
	ch.Enqueue(Step{Response: []byte{1}, Delay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ch.Receive(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelClosed(t *testing.T) {
	ch := New(WithClosed())
	ctx := context.Background()

	open, err := ch.IsOpen(ctx)
	require.NoError(t, err)
	assert.False(t, open)

	err = ch.Send(ctx, channel.NewRequest([]byte{1}))
	assert.ErrorIs(t, err, channel.ErrClosed)

	require.NoError(t, ch.Open(ctx))
	assert.NoError(t, ch.Send(ctx, channel.NewRequest([]byte{1})))
}

func TestChannelCustomResponder(t *testing.T) {
	ch := New(WithResponder(func(_ context.Context, req []byte) ([]byte, error) {
		return append([]byte("ACK:"), req...), nil
	}))

	resp, err := ch.SendReceive(context.Background(), channel.NewRequest([]byte("x")), nil)
	require.NoError(t, err)
	assert.Equal(t, "ACK:x", string(resp.Data()))
}

func TestPeriodicMessage(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).Start()
	defer detector.Check()

	ch := New()
	ctx := context.Background()

	handle, err := ch.StartPeriodicMessage(ctx, channel.NewRequest([]byte{0xAA}), 5*time.Millisecond)
	require.NoError(t, err)
	assert.NotEmpty(t, handle)

	assert.Eventually(t, func() bool { return ch.PeriodicTicks(handle) >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ch.StopPeriodicMessage(ctx, handle))

	assert.Error(t, ch.StopPeriodicMessage(ctx, handle))
	for _, p := range ch.Sent() {
		assert.Equal(t, []byte{0xAA}, p)
	}
	require.NoError(t, ch.Close(ctx))
}

func TestPeriodicMessageStoppedByClose(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).Start()
	defer detector.Check()

	ch := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ch.StartPeriodicMessage(ctx, channel.NewRequest([]byte{byte(i)}), time.Millisecond)
		require.NoError(t, err)
	}
	require.NoError(t, ch.Close(ctx))

	_, err := ch.StartPeriodicMessage(ctx, channel.NewRequest([]byte{1}), time.Millisecond)
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestPeriodicMessageRejectsBadInterval(t *testing.T) {
	ch := New()
	_, err := ch.StartPeriodicMessage(context.Background(), channel.NewRequest([]byte{1}), 0)
	assert.Error(t, err)
}

func TestInterface(t *testing.T) {
	ctx := context.Background()
	iface := NewInterface()

	_, err := iface.CreateChannel(ctx, channel.Configuration{Name: "early"})
	assert.ErrorIs(t, err, channel.ErrClosed)

	require.NoError(t, iface.Open(ctx))
	ch, err := iface.CreateChannel(ctx, channel.Configuration{Name: "radio", Timeout: time.Second})
	require.NoError(t, err)

	created := iface.Channels()
	require.Len(t, created, 1)
	assert.Equal(t, "radio", created[0].Configuration().Name)

	require.NoError(t, iface.Close(ctx))
	open, err := ch.IsOpen(ctx)
	require.NoError(t, err)
	assert.False(t, open)
	assert.Empty(t, iface.Channels())
}
