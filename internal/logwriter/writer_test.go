package logwriter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/logchannel"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []string
}

func (f *fakeStore) AppendLog(_ context.Context, _ string, payload string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, payload)
	return int64(len(f.rows)), nil
}

func TestWriteFinishedRejectsFurtherWrites(t *testing.T) {
	store := &fakeStore{}
	ch := logchannel.New()
	w := New(store, ch, "exec-1")

	require.NoError(t, w.WriteStdout(context.Background(), "hello\n"))
	require.NoError(t, w.WriteFinished(context.Background()))

	err := w.WriteStdout(context.Background(), "late\n")
	require.ErrorIs(t, err, ErrFinished)
}

func TestAsyncWriterSplitsOnNewlines(t *testing.T) {
	store := &fakeStore{}
	ch := logchannel.New()
	w := New(store, ch, "exec-1")

	lw := w.AsyncWriter(context.Background(), StreamStdout)
	_, _ = lw.Write([]byte("hel"))
	_, _ = lw.Write([]byte("lo\nworld"))
	require.NoError(t, lw.Flush())

	require.Equal(t, []string{
		"{\"type\":\"Stdout\",\"content\":\"hello\\n\"}\n",
		"{\"type\":\"Stdout\",\"content\":\"world\"}\n",
	}, store.rows)
}

func TestS1HappyPathLogSequence(t *testing.T) {
	store := &fakeStore{}
	ch := logchannel.New()
	w := New(store, ch, "exec-1")
	ctx := context.Background()

	require.NoError(t, w.WriteSessionID(ctx, "s"))
	require.NoError(t, w.WriteStdout(ctx, "hello\n"))
	require.NoError(t, w.WriteFinished(ctx))

	require.Equal(t, []string{
		"{\"type\":\"SessionId\",\"content\":\"s\"}\n",
		"{\"type\":\"Stdout\",\"content\":\"hello\\n\"}\n",
		"{\"type\":\"Finished\"}\n",
	}, store.rows)
}
