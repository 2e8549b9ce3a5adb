package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/execflow/internal/executor"
	"github.com/codeready-toolchain/execflow/internal/executor/stub"
	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
	"github.com/codeready-toolchain/execflow/internal/store"
)

type fakeStore struct {
	mu    sync.Mutex
	procs map[string]store.ExecutionProcess
	logs  map[string][]string
	seq   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{procs: make(map[string]store.ExecutionProcess), logs: make(map[string][]string)}
}

func (f *fakeStore) AppendLog(_ context.Context, executionID, payload string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.logs[executionID] = append(f.logs[executionID], payload)
	return f.seq, nil
}

func (f *fakeStore) CreateRunning(_ context.Context, p store.ExecutionProcess) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.procs {
		if existing.AttemptID == p.AttemptID && existing.Status == store.ProcessRunning {
			return store.ErrAttemptBusy
		}
	}
	f.procs[p.ID] = p
	return nil
}

func (f *fakeStore) GetProcess(_ context.Context, id string) (*store.ExecutionProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeStore) SetExecutorSessionID(_ context.Context, processID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[processID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Status != store.ProcessRunning || p.ExecutorSessionID != nil {
		return store.ErrSessionIDSet
	}
	p.ExecutorSessionID = &sessionID
	f.procs[processID] = p
	return nil
}

func (f *fakeStore) UpdateTerminal(_ context.Context, processID string, status store.ProcessStatus, exitCode *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[processID]
	if !ok || p.Status != store.ProcessRunning {
		return store.ErrProcessNotRunning
	}
	p.Status = status
	p.ExitCode = exitCode
	f.procs[processID] = p
	return nil
}

func (f *fakeStore) StaleRunning(_ context.Context, cutoff time.Time) ([]store.ExecutionProcess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ExecutionProcess
	for _, p := range f.procs {
		if p.Status == store.ProcessRunning && p.StartedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) status(id string) store.ProcessStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.procs[id].Status
}

func waitForStatus(t *testing.T, fs *fakeStore, id string, want store.ProcessStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return fs.status(id) == want
	}, 2*time.Second, 5*time.Millisecond)
}

// TestS1HappyPathCompletes encodes spec.md's S1 seed scenario: a stub
// adapter spawn runs to completion and the row lands Completed.
func TestS1HappyPathCompletes(t *testing.T) {
	fs := newFakeStore()
	p := New(fs, nil, nil, nil)

	proc, err := p.Spawn(context.Background(), "task-1", uuid.New().String(), "/work", stub.New(), "do it", nil, store.RunKindCodingAgent)
	require.NoError(t, err)

	waitForStatus(t, fs, proc.ID, store.ProcessCompleted)
}

// TestSpawnWhileBusyReturnsErrBusy encodes spec.md §4.5.3's single-runner
// invariant: a second Spawn for the same attempt fails while one is
// already Running.
func TestSpawnWhileBusyReturnsErrBusy(t *testing.T) {
	fs := newFakeStore()
	p := New(fs, nil, nil, nil)
	attemptID := uuid.New().String()

	// blockingAdapter's Wait never returns on its own, keeping the first
	// process Running until the test cancels it.
	blocker := &blockingAdapter{}
	_, err := p.Spawn(context.Background(), "task-1", attemptID, "/work", blocker, "first", nil, store.RunKindCodingAgent)
	require.NoError(t, err)

	_, err = p.Spawn(context.Background(), "task-1", attemptID, "/work", stub.New(), "second", nil, store.RunKindCodingAgent)
	require.ErrorIs(t, err, store.ErrAttemptBusy)

	blocker.release()
}

// TestQueuedFollowUpPromotesOnCompletion wires the Queued-Message Service
// into the pipeline and verifies promotion fires after a Completed
// terminal status.
func TestQueuedFollowUpPromotesOnCompletion(t *testing.T) {
	fs := newFakeStore()
	qm := queuedmsg.New(nil)
	p := New(fs, nil, nil, qm)

	attemptID := uuid.New().String()
	qm.Queue(attemptID, "keep going", time.Now().UnixNano())

	proc, err := p.Spawn(context.Background(), "task-1", attemptID, "/work", stub.New(), "first run", nil, store.RunKindCodingAgent)
	require.NoError(t, err)
	waitForStatus(t, fs, proc.ID, store.ProcessCompleted)

	require.Eventually(t, func() bool {
		return !qm.CurrentStatus(attemptID).Queued
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		for _, proc := range fs.procs {
			if proc.AttemptID == attemptID && proc.RunKind == store.RunKindFollowUp {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

// blockingAdapter spawns a child whose Wait blocks until release is
// called, used to hold a process Running for the busy-invariant test.
type blockingAdapter struct {
	stop chan struct{}
	once sync.Once
}

func (b *blockingAdapter) init() {
	b.once.Do(func() { b.stop = make(chan struct{}) })
}

func (b *blockingAdapter) release() {
	b.init()
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
}

func (b *blockingAdapter) Spawn(context.Context, string, string, executor.Env) (*executor.SpawnedChild, error) {
	b.init()
	return &executor.SpawnedChild{
		Stdout: readCloserEOF{},
		Stderr: readCloserEOF{},
		Wait: func(context.Context) (int, error) {
			<-b.stop
			return 0, nil
		},
		Cancel: func() { b.release() },
	}, nil
}

func (b *blockingAdapter) SpawnFollowUp(ctx context.Context, cwd, prompt, sessionID string, env executor.Env) (*executor.SpawnedChild, error) {
	return b.Spawn(ctx, cwd, prompt, env)
}

func (b *blockingAdapter) NormalizeLogs(ctx context.Context, sub executor.Subscriber, _ string, _ func(any)) error {
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingAdapter) DefaultConfigPath() string { return "" }
func (b *blockingAdapter) Availability(context.Context) executor.Availability {
	return executor.Installed
}

type readCloserEOF struct{}

func (readCloserEOF) Read([]byte) (int, error) { return 0, io.EOF }
func (readCloserEOF) Close() error             { return nil }
