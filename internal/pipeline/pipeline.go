// Package pipeline implements the Execution Pipeline (C5): the heart of
// the subsystem, orchestrating one ExecutionProcess end-to-end from
// spawn through termination (spec.md §4.5).
//
// Grounded on pkg/queue/worker.go's struct shape (stopCh/stopOnce,
// sync.WaitGroup, slog.With contextual logging), pkg/queue/pool.go's
// session-registry-of-cancel-funcs idiom (generalized here to a registry
// of Log Channels), pkg/queue/orphan.go's ticker-driven idempotent
// periodic-scan pattern (reused for startup/periodic orphan recovery),
// and pkg/queue/executor.go's ctx.Err()-based terminal-status correction
// on cancellation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execflow/internal/approval"
	"github.com/codeready-toolchain/execflow/internal/eventbus"
	"github.com/codeready-toolchain/execflow/internal/executor"
	"github.com/codeready-toolchain/execflow/internal/logchannel"
	"github.com/codeready-toolchain/execflow/internal/logwriter"
	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
	"github.com/codeready-toolchain/execflow/internal/store"
)

// ErrBusy is returned by Spawn when the attempt already has a Running
// process (spec.md §4.5.3).
var ErrBusy = store.ErrAttemptBusy

// Store is the narrow persistence surface Pipeline depends on, satisfied
// by *store.Client. Narrowed for testability (internal/logwriter's
// LogStore convention, generalized to the process-lifecycle methods).
type Store interface {
	logwriter.LogStore
	CreateRunning(ctx context.Context, p store.ExecutionProcess) error
	GetProcess(ctx context.Context, id string) (*store.ExecutionProcess, error)
	SetExecutorSessionID(ctx context.Context, processID, sessionID string) error
	UpdateTerminal(ctx context.Context, processID string, status store.ProcessStatus, exitCode *int) error
	StaleRunning(ctx context.Context, cutoff time.Time) ([]store.ExecutionProcess, error)
}

type runningMeta struct {
	taskID  string
	cwd     string
	env     executor.Env
	adapter executor.Adapter
}

// Pipeline orchestrates ExecutionProcess lifecycles.
type Pipeline struct {
	store     Store
	bus       eventbus.Publisher
	approvals *approval.Registry
	queued    *queuedmsg.Service

	mu       sync.Mutex
	channels map[string]*logchannel.Channel // execution id -> channel
	meta     map[string]runningMeta         // attempt id -> most recent spawn's metadata
}

// New constructs a Pipeline.
func New(s Store, bus eventbus.Publisher, approvals *approval.Registry, queued *queuedmsg.Service) *Pipeline {
	return &Pipeline{
		store:     s,
		bus:       bus,
		approvals: approvals,
		queued:    queued,
		channels:  make(map[string]*logchannel.Channel),
		meta:      make(map[string]runningMeta),
	}
}

// Channel returns the in-memory Log Channel for a still-live execution,
// or nil if none is held (a terminated execution's channel is retained
// only long enough for current subscribers to drain — spec.md §4.5.4
// step 7; late readers re-materialize from the log table instead).
func (p *Pipeline) Channel(executionID string) *logchannel.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[executionID]
}

// Spawn implements spec.md §4.5.2's spawn sequence for a fresh session.
func (p *Pipeline) Spawn(ctx context.Context, taskID, attemptID, cwd string, adapter executor.Adapter, prompt string, env executor.Env, runKind store.RunKind) (*store.ExecutionProcess, error) {
	return p.spawn(ctx, taskID, attemptID, cwd, adapter, prompt, env, runKind, nil)
}

// SpawnFollowUp implements queuedmsg.Spawner: it continues the session
// most recently spawned for attemptID, using the adapter and environment
// that spawn used (spec.md §4.6 promotion).
func (p *Pipeline) SpawnFollowUp(ctx context.Context, attemptID, priorSessionID, prompt string) error {
	p.mu.Lock()
	meta, ok := p.meta[attemptID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: no prior execution metadata for attempt %s", attemptID)
	}
	sessionID := priorSessionID
	_, err := p.spawn(ctx, meta.taskID, attemptID, meta.cwd, meta.adapter, prompt, meta.env, store.RunKindFollowUp, &sessionID)
	return err
}

func (p *Pipeline) spawn(ctx context.Context, taskID, attemptID, cwd string, adapter executor.Adapter, prompt string, env executor.Env, runKind store.RunKind, priorSessionID *string) (*store.ExecutionProcess, error) {
	proc := store.ExecutionProcess{
		ID:        uuid.New().String(),
		AttemptID: attemptID,
		RunKind:   runKind,
		Status:    store.ProcessRunning,
		StartedAt: time.Now(),
	}

	// Step 1: allocate and persist.
	if err := p.store.CreateRunning(ctx, proc); err != nil {
		return nil, err // ErrAttemptBusy surfaces unwrapped so callers can errors.Is it
	}

	p.mu.Lock()
	p.meta[attemptID] = runningMeta{taskID: taskID, cwd: cwd, env: env, adapter: adapter}
	p.mu.Unlock()

	// Step 2: Log Channel + Log Writer scoped to this execution.
	channel := logchannel.New()
	writer := logwriter.New(p.store, channel, proc.ID)
	p.mu.Lock()
	p.channels[proc.ID] = channel
	p.mu.Unlock()

	// Step 3: spawn (or resume) the child.
	var child *executor.SpawnedChild
	var err error
	if priorSessionID != nil {
		child, err = adapter.SpawnFollowUp(ctx, cwd, prompt, *priorSessionID, env)
	} else {
		child, err = adapter.Spawn(ctx, cwd, prompt, env)
	}
	if err != nil {
		// spec.md §4.5.5: SpawnFailed upstream of the row leaves no
		// recoverable Running row behind; correct the one we just made.
		_ = p.store.UpdateTerminal(ctx, proc.ID, store.ProcessFailed, nil)
		return nil, fmt.Errorf("%w: %v", executor.ErrSpawnFailed, err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	// Step 4: install normalize_logs on the channel.
	normSub := channel.Subscribe()
	go p.runNormalizer(runCtx, adapter, normSub, cwd, writer)

	// Pipeline's own subscription: watch for SessionId to persist it
	// one-shot (spec.md §4.5.3).
	sessionSub := channel.Subscribe()
	go p.watchSessionID(runCtx, sessionSub, proc.ID)

	// Step 5: attach stdio to the async writer.
	done := make(chan terminationSignal, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go p.forward(runCtx, &wg, child.Stdout, writer.AsyncWriter(runCtx, logwriter.StreamStdout), done)
	go p.forward(runCtx, &wg, child.Stderr, writer.AsyncWriter(runCtx, logwriter.StreamStderr), done)

	go func() {
		wg.Wait()
		exitCode, waitErr := child.Wait(context.Background())
		cancel()
		done <- terminationSignal{exitCode: exitCode, err: waitErr}
	}()

	go p.awaitTermination(ctx, &proc, cancel, child, done, writer, attemptID)

	// Step 6: Event Bus insert patch.
	if p.bus != nil {
		_ = p.bus.Publish(ctx, eventbus.Patch{
			Table:  eventbus.TableExecutionProcess,
			Op:     eventbus.OpInsert,
			Record: proc,
		})
	}

	return &proc, nil
}

type terminationSignal struct {
	exitCode int
	err      error
}

func (p *Pipeline) forward(ctx context.Context, wg *sync.WaitGroup, src io.Reader, dst *logwriter.LineSplitter, done chan<- terminationSignal) {
	defer wg.Done()
	_, err := io.Copy(dst, src)
	_ = dst.Flush()
	if err != nil && !errors.Is(err, io.EOF) {
		select {
		case done <- terminationSignal{exitCode: -1, err: err}:
		default:
		}
	}
}

// awaitTermination blocks for the first of: a wait-loop result, or the
// outer context's cancellation (an explicit Kill request), and drives
// termination exactly once (spec.md §4.5.4).
func (p *Pipeline) awaitTermination(ctx context.Context, proc *store.ExecutionProcess, cancelChild context.CancelFunc, child *executor.SpawnedChild, done <-chan terminationSignal, writer *logwriter.Writer, attemptID string) {
	var status store.ProcessStatus
	var exitCode *int

	select {
	case sig := <-done:
		switch {
		case sig.err != nil:
			status = store.ProcessFailed
		case sig.exitCode == 0:
			status = store.ProcessCompleted
			ec := sig.exitCode
			exitCode = &ec
		default:
			status = store.ProcessFailed
			ec := sig.exitCode
			exitCode = &ec
		}
	case <-ctx.Done():
		status = store.ProcessKilled
		child.Cancel()
		cancelChild()
		<-done // drain the forwarder goroutines' eventual signal
	}

	p.terminate(context.Background(), proc, status, exitCode, writer, attemptID)
}

// terminate implements spec.md §4.5.4 steps 2-6.
func (p *Pipeline) terminate(ctx context.Context, proc *store.ExecutionProcess, status store.ProcessStatus, exitCode *int, writer *logwriter.Writer, attemptID string) {
	if !p.persistTerminalWithRetry(ctx, proc.ID, status, exitCode) {
		_ = writer.WriteStderr(ctx, "terminal status persist failed after retries; row left Running for reconciliation")
		return
	}

	_ = writer.WriteFinished(ctx)

	if p.approvals != nil {
		if err := p.approvals.CancelForExecution(ctx, proc.ID); err != nil {
			slog.Error("cancel pending approvals on terminate failed", "execution_id", proc.ID, "error", err)
		}
	}

	if p.bus != nil {
		_ = p.bus.Publish(ctx, eventbus.Patch{
			Table: eventbus.TableExecutionProcess,
			Op:    eventbus.OpUpdate,
			Record: map[string]any{
				"id":     proc.ID,
				"status": status,
			},
		})
	}

	p.mu.Lock()
	delete(p.channels, proc.ID)
	p.mu.Unlock()

	if p.queued != nil {
		updated, err := p.store.GetProcess(ctx, proc.ID)
		priorSessionID := ""
		if err == nil && updated.ExecutorSessionID != nil {
			priorSessionID = *updated.ExecutorSessionID
		}
		if err := p.queued.OnExecutionTerminal(ctx, p, attemptID, attemptID, status, priorSessionID); err != nil {
			slog.Error("queued-message promotion failed", "attempt_id", attemptID, "error", err)
		}
	}
}

// persistTerminalWithRetry implements spec.md §4.5.5's PersistFailed
// handling: bounded exponential backoff, 3 attempts.
func (p *Pipeline) persistTerminalWithRetry(ctx context.Context, processID string, status store.ProcessStatus, exitCode *int) bool {
	const maxAttempts = 3
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.store.UpdateTerminal(ctx, processID, status, exitCode)
		if err == nil || errors.Is(err, store.ErrProcessNotRunning) {
			return true
		}
		if attempt == maxAttempts {
			slog.Error("persist terminal status failed", "execution_id", processID, "attempts", attempt, "error", err)
			return false
		}
		jitter := time.Duration(rand.Int64N(int64(backoff)))
		time.Sleep(backoff + jitter)
		backoff *= 2
	}
	return false
}

// watchSessionID implements spec.md §4.5.3's "subscribe for one purpose:
// detect a SessionId message and persist it on the row".
func (p *Pipeline) watchSessionID(ctx context.Context, sub *logchannel.Subscription, processID string) {
	defer sub.Unsubscribe()
	for {
		select {
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			m, ok := msg.(logwriter.Msg)
			if !ok || m.Kind != logwriter.KindSessionID {
				continue
			}
			if err := p.store.SetExecutorSessionID(ctx, processID, m.Content); err != nil && !errors.Is(err, store.ErrSessionIDSet) {
				slog.Error("persist executor session id failed", "execution_id", processID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// runNormalizer implements spec.md §4.5.5's normalizer restart-once
// policy: its task is restarted once on panic; a second failure emits an
// error log line and the pipeline proceeds without normalization.
func (p *Pipeline) runNormalizer(ctx context.Context, adapter executor.Adapter, sub *logchannel.Subscription, cwd string, writer *logwriter.Writer) {
	defer sub.Unsubscribe()
	emit := func(msg any) {
		if m, ok := msg.(logwriter.Msg); ok {
			_ = writer.Write(ctx, m)
		}
	}

	run := func() (panicked bool) {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				slog.Error("normalizer panicked", "recover", r)
			}
		}()
		_ = adapter.NormalizeLogs(ctx, sub, cwd, emit)
		return false
	}

	if run() {
		if run() {
			_ = writer.WriteStderr(ctx, "normalizer failed twice; proceeding without normalization")
		}
	}
}

// RecoverStartupOrphans marks any Running row whose started_at predates
// cutoff as Failed, for the case this process crashed mid-execution and
// was restarted (spec.md §5 "if the process is local, the pipeline
// cannot be resumed elsewhere on crash; terminal-state recovery is left
// to the reconciliation job" — this is that reconciliation job's
// in-process counterpart, grounded on pkg/queue/orphan.go's
// detectAndRecoverOrphans).
func (p *Pipeline) RecoverStartupOrphans(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := p.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("recover startup orphans: %w", err)
	}
	n := 0
	for _, proc := range stale {
		if err := p.store.UpdateTerminal(ctx, proc.ID, store.ProcessFailed, nil); err != nil && !errors.Is(err, store.ErrProcessNotRunning) {
			slog.Error("recover orphaned process failed", "execution_id", proc.ID, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// RunOrphanScanner periodically recovers processes stuck Running past
// threshold, until ctx is cancelled.
func (p *Pipeline) RunOrphanScanner(ctx context.Context, interval, threshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RecoverStartupOrphans(ctx, time.Now().Add(-threshold)); err != nil {
				slog.Error("orphan scan failed", "error", err)
			}
		}
	}
}
