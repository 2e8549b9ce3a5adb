package approval

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/store"
)

type fakeStore struct {
	mu   sync.Mutex
	rows map[string]store.ApprovalRequest
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]store.ApprovalRequest)}
}

func (f *fakeStore) CreateApproval(_ context.Context, a store.ApprovalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[a.ID] = a
	return nil
}

func (f *fakeStore) Resolve(_ context.Context, id string, outcome store.ApprovalStatus, reviewerID, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.ApprovalPending {
		return store.ErrAlreadyResolved
	}
	a.Status = outcome
	f.rows[id] = a
	return nil
}

func (f *fakeStore) ListPendingForExecution(_ context.Context, executionID string) ([]store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ApprovalRequest
	for _, a := range f.rows {
		if a.ExecutionID == executionID && a.Status == store.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingPastDeadline(_ context.Context) ([]store.ApprovalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ApprovalRequest
	for _, a := range f.rows {
		if a.Status == store.ApprovalPending && a.DeadlineAt.Before(time.Now()) {
			out = append(out, a)
		}
	}
	return out, nil
}

// findPendingID is a test helper since Raise doesn't return the approval id.
func (f *fakeStore) findPendingID(executionID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.rows {
		if a.ExecutionID == executionID {
			return id
		}
	}
	return ""
}

// TestS6RaiseBlocksUntilResolve encodes spec.md's S6 seed scenario: a
// raised approval blocks the waiter until a reviewer resolves it.
func TestS6RaiseBlocksUntilResolve(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, nil, nil)

	executionID := uuid.New().String()
	resultCh := make(chan store.ApprovalStatus, 1)
	go func() {
		status, err := r.Raise(context.Background(), executionID, "run_shell", `{"cmd":"rm -rf"}`, "call-1", time.Minute)
		require.NoError(t, err)
		resultCh <- status
	}()

	require.Eventually(t, func() bool {
		return fs.findPendingID(executionID) != ""
	}, time.Second, time.Millisecond)

	id := fs.findPendingID(executionID)
	require.NoError(t, r.Resolve(context.Background(), id, store.ApprovalApproved, nil, nil))

	select {
	case status := <-resultCh:
		require.Equal(t, store.ApprovalApproved, status)
	case <-time.After(time.Second):
		t.Fatal("Raise did not unblock after Resolve")
	}
}

func TestResolveTwiceReturnsAlreadyResolved(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, nil, nil)
	req := store.ApprovalRequest{ID: uuid.New().String(), ExecutionID: "exec-1", Status: store.ApprovalPending, DeadlineAt: time.Now().Add(time.Hour)}
	require.NoError(t, fs.CreateApproval(context.Background(), req))

	require.NoError(t, r.Resolve(context.Background(), req.ID, store.ApprovalDenied, nil, nil))
	err := r.Resolve(context.Background(), req.ID, store.ApprovalApproved, nil, nil)
	require.ErrorIs(t, err, store.ErrAlreadyResolved)
}

func TestCancelForExecutionResolvesAllPending(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, nil, nil)
	for i := 0; i < 3; i++ {
		req := store.ApprovalRequest{ID: uuid.New().String(), ExecutionID: "exec-2", Status: store.ApprovalPending, DeadlineAt: time.Now().Add(time.Hour)}
		require.NoError(t, fs.CreateApproval(context.Background(), req))
	}

	require.NoError(t, r.CancelForExecution(context.Background(), "exec-2"))

	pending, err := fs.ListPendingForExecution(context.Background(), "exec-2")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestExpirePastDeadlineExpiresOnlyOverdue(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, nil, nil)
	overdue := store.ApprovalRequest{ID: uuid.New().String(), ExecutionID: "exec-3", Status: store.ApprovalPending, DeadlineAt: time.Now().Add(-time.Minute)}
	fresh := store.ApprovalRequest{ID: uuid.New().String(), ExecutionID: "exec-3", Status: store.ApprovalPending, DeadlineAt: time.Now().Add(time.Hour)}
	require.NoError(t, fs.CreateApproval(context.Background(), overdue))
	require.NoError(t, fs.CreateApproval(context.Background(), fresh))

	n, err := r.ExpirePastDeadline(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pending, err := fs.ListPendingForExecution(context.Background(), "exec-3")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, fresh.ID, pending[0].ID)
}
