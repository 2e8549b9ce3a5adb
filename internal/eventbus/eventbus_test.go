package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	channel string
	payload string
}

func (f *fakeNotifier) Notify(_ context.Context, channel, payload string) error {
	f.channel = channel
	f.payload = payload
	return nil
}

func TestPublishMarshalsAndNotifiesGlobalChannel(t *testing.T) {
	n := &fakeNotifier{}
	bus := New(n)

	err := bus.Publish(context.Background(), Patch{
		Table: TableExecutionProcess,
		Op:    OpUpdate,
		Record: map[string]any{
			"id":     "e1",
			"status": "completed",
		},
	})
	require.NoError(t, err)
	require.Equal(t, ChannelName(), n.channel)
	require.Contains(t, n.payload, `"table":"execution_process"`)
	require.Contains(t, n.payload, `"op":"update"`)
}
