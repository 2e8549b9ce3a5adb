package queuedmsg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/store"
)

type fakeSpawner struct {
	calls []string
}

func (f *fakeSpawner) SpawnFollowUp(_ context.Context, attemptID, priorSessionID, prompt string) error {
	f.calls = append(f.calls, attemptID+"|"+priorSessionID+"|"+prompt)
	return nil
}

func TestQueueOverwritesPriorEntry(t *testing.T) {
	s := New(nil)
	s.Queue("ws-1", "first draft", 1)
	got := s.Queue("ws-1", "second draft", 2)
	require.True(t, got.Queued)
	require.Equal(t, "second draft", got.Draft)
}

func TestCancelEmptiesSlot(t *testing.T) {
	s := New(nil)
	s.Queue("ws-1", "draft", 1)
	got := s.Cancel("ws-1")
	require.False(t, got.Queued)
	require.Equal(t, Status{}, s.CurrentStatus("ws-1"))
}

// TestS4PromotesOnlyOnCompleted encodes spec.md's S4 seed scenario and
// Testable Property 6: a queued draft is promoted to a follow-up only
// when the terminating execution's status is Completed.
func TestS4PromotesOnlyOnCompleted(t *testing.T) {
	s := New(nil)
	s.Queue("ws-1", "continue the refactor", 1)

	spawner := &fakeSpawner{}
	err := s.OnExecutionTerminal(context.Background(), spawner, "ws-1", "attempt-1", store.ProcessCompleted, "session-abc")
	require.NoError(t, err)
	require.Equal(t, []string{"attempt-1|session-abc|continue the refactor"}, spawner.calls)
	require.False(t, s.CurrentStatus("ws-1").Queued)
}

func TestOnExecutionTerminalDropsQueueOnFailure(t *testing.T) {
	s := New(nil)
	s.Queue("ws-1", "continue the refactor", 1)

	spawner := &fakeSpawner{}
	err := s.OnExecutionTerminal(context.Background(), spawner, "ws-1", "attempt-1", store.ProcessFailed, "session-abc")
	require.NoError(t, err)
	require.Empty(t, spawner.calls)
	require.False(t, s.CurrentStatus("ws-1").Queued)
}

func TestOnExecutionTerminalNoOpWhenEmpty(t *testing.T) {
	s := New(nil)
	spawner := &fakeSpawner{}
	err := s.OnExecutionTerminal(context.Background(), spawner, "ws-1", "attempt-1", store.ProcessCompleted, "session-abc")
	require.NoError(t, err)
	require.Empty(t, spawner.calls)
}
