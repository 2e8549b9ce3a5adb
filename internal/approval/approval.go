// Package approval implements the Approval Registry (C4): a process-wide,
// in-memory registry of ApprovalRequest that bridges an adapter's
// tool-call waiter to a human reviewer's resolve call (spec.md §4.4).
//
// Grounded on pkg/session/manager.go's map+sync.RWMutex in-memory registry
// shape, generalized from sessions to approval waiters, and on
// nickmisasi-mattermost-plugin-cursor/server/hitl.go's single-pending-slot
// phase machine for the producer/waiter half of the protocol (this module
// has no Slack/Mattermost surface of its own — the phase-machine idiom is
// what's reused, not the transport). tombee-conductor's permissions
// package independently models "who may resolve" as a distinct concern
// from "is this request still open", which is reflected in Resolve taking
// a reviewerID without this package re-implementing access control itself
// (spec.md §4.4 "access check is an external concern").
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/execflow/internal/eventbus"
	"github.com/codeready-toolchain/execflow/internal/store"
	"github.com/codeready-toolchain/execflow/internal/workspace"
)

// DefaultDeadline is the approval timeout when the caller does not
// specify one (spec.md §4.4 "default 30 minutes").
const DefaultDeadline = 30 * time.Minute

var ErrAlreadyResolved = store.ErrAlreadyResolved
var ErrNotFound = store.ErrNotFound

// Store is the narrow persistence surface Registry depends on, satisfied
// by *store.Client. Narrowed for testability, matching
// internal/logwriter's LogStore convention.
type Store interface {
	CreateApproval(ctx context.Context, a store.ApprovalRequest) error
	Resolve(ctx context.Context, id string, outcome store.ApprovalStatus, reviewerID, reason *string) error
	ListPendingForExecution(ctx context.Context, executionID string) ([]store.ApprovalRequest, error)
	ListPendingPastDeadline(ctx context.Context) ([]store.ApprovalRequest, error)
}

// waiter is the in-memory half of a pending approval: the store row is
// the durable record, this is the channel the adapter bridge blocks on.
type waiter struct {
	done chan store.ApprovalStatus
	once sync.Once
}

func (w *waiter) complete(status store.ApprovalStatus) {
	w.once.Do(func() { w.done <- status; close(w.done) })
}

// Registry is the process-wide approval registry.
type Registry struct {
	store Store
	bus   eventbus.Publisher
	ws    *workspace.Service

	// DefaultTimeout is the deadline Raise falls back to when its caller
	// passes a non-positive duration. Defaults to DefaultDeadline, override
	// via config.ApprovalConfig at construction time.
	DefaultTimeout time.Duration

	mu      sync.RWMutex
	waiters map[string]*waiter
}

// New constructs a Registry over the given store and Event Bus.
func New(s Store, bus eventbus.Publisher, ws *workspace.Service) *Registry {
	return &Registry{
		store:          s,
		bus:            bus,
		ws:             ws,
		DefaultTimeout: DefaultDeadline,
		waiters:        make(map[string]*waiter),
	}
}

// Raise is called by the adapter bridge when the running agent announces
// a tool call requiring approval. It persists a Pending ApprovalRequest,
// best-effort requests the task transition to InReview, notifies the
// Event Bus, and blocks until the approval is resolved or ctx is
// cancelled (spec.md §4.4).
func (r *Registry) Raise(ctx context.Context, executionID, toolName, toolInputJSON, toolCallID string, deadline time.Duration) (store.ApprovalStatus, error) {
	if deadline <= 0 {
		deadline = r.DefaultTimeout
	}

	req := store.ApprovalRequest{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		ToolName:    toolName,
		ToolInput:   toolInputJSON,
		ToolCallID:  toolCallID,
		Status:      store.ApprovalPending,
		DeadlineAt:  time.Now().Add(deadline),
	}

	// Register the waiter before the row exists, so a Resolve that lands
	// right after the insert always finds it.
	w := &waiter{done: make(chan store.ApprovalStatus, 1)}
	r.mu.Lock()
	r.waiters[req.ID] = w
	r.mu.Unlock()
	defer r.forget(req.ID)

	if err := r.store.CreateApproval(ctx, req); err != nil {
		return "", fmt.Errorf("raise approval: %w", err)
	}

	// Best-effort: spec.md §4.4 "the bridge SHOULD request the task to
	// transition to InReview; this is not part of the approval's
	// correctness." A failure here never blocks the approval itself.
	if r.ws != nil {
		_ = r.ws.SetTaskStatusIfRunning(ctx, r.bus, executionID, "InReview")
	}

	if r.bus != nil {
		_ = r.bus.Publish(ctx, eventbus.Patch{
			Table:  eventbus.TableExecutionProcess,
			Op:     eventbus.OpInsert,
			Record: req,
		})
	}

	select {
	case status := <-w.done:
		return status, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve performs the CAS transition Pending -> outcome and wakes the
// waiter blocked in Raise, if one is still registered locally (it may not
// be, if this process did not raise the approval — multi-instance
// deployment is out of scope per spec.md §5, so that case is not expected
// in practice but Resolve still succeeds at the store layer either way).
func (r *Registry) Resolve(ctx context.Context, id string, outcome store.ApprovalStatus, reviewerID, reason *string) error {
	if err := r.store.Resolve(ctx, id, outcome, reviewerID, reason); err != nil {
		return err
	}
	r.wake(id, outcome)
	if r.bus != nil {
		_ = r.bus.Publish(ctx, eventbus.Patch{
			Table: eventbus.TableExecutionProcess,
			Op:    eventbus.OpUpdate,
			Record: map[string]string{
				"approval_id": id,
				"status":      string(outcome),
			},
		})
	}
	return nil
}

// CancelForExecution resolves every still-Pending approval belonging to
// executionID to Cancelled, used when the pipeline drives an execution to
// a terminal state (spec.md §4.4 "the pipeline MUST resolve it to
// Cancelled so the adapter's waiter unblocks").
func (r *Registry) CancelForExecution(ctx context.Context, executionID string) error {
	pending, err := r.store.ListPendingForExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("cancel approvals for execution: %w", err)
	}
	for _, a := range pending {
		if err := r.Resolve(ctx, a.ID, store.ApprovalCancelled, nil, nil); err != nil && !errors.Is(err, store.ErrAlreadyResolved) {
			return fmt.Errorf("cancel approval %s: %w", a.ID, err)
		}
	}
	return nil
}

// ExpirePastDeadline resolves every Pending approval whose deadline has
// passed to Expired. Intended to be called periodically by a timekeeper
// task (spec.md §4.4 "a timekeeper task expires pending approvals when
// the deadline passes").
func (r *Registry) ExpirePastDeadline(ctx context.Context) (int, error) {
	expired, err := r.store.ListPendingPastDeadline(ctx)
	if err != nil {
		return 0, fmt.Errorf("list past-deadline approvals: %w", err)
	}
	n := 0
	for _, a := range expired {
		if err := r.Resolve(ctx, a.ID, store.ApprovalExpired, nil, nil); err != nil {
			if errors.Is(err, store.ErrAlreadyResolved) {
				continue
			}
			return n, fmt.Errorf("expire approval %s: %w", a.ID, err)
		}
		n++
	}
	return n, nil
}

// RunTimekeeper loops ExpirePastDeadline on interval until ctx is
// cancelled.
func (r *Registry) RunTimekeeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.ExpirePastDeadline(ctx)
		}
	}
}

func (r *Registry) wake(id string, status store.ApprovalStatus) {
	r.mu.RLock()
	w, ok := r.waiters[id]
	r.mu.RUnlock()
	if ok {
		w.complete(status)
	}
}

func (r *Registry) forget(id string) {
	r.mu.Lock()
	delete(r.waiters, id)
	r.mu.Unlock()
}
