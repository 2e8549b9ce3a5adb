// Package workspace implements the thin data-access layer named
// "Workspace/Attempt State" (C7) in spec.md §4.7: a service wrapping
// internal/store with the handful of read/write operations the rest of
// the core (and external callers reached via MCP) depend on.
//
// Grounded on pkg/services/session_service.go's shape — a struct wrapping
// a client, exposing narrow request/response methods rather than the raw
// store API — generalized here from ent's entity client to
// internal/store's plain-SQL client.
package workspace

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/execflow/internal/eventbus"
	"github.com/codeready-toolchain/execflow/internal/store"
)

// ContainerRef is the set of keys an opaque external reference resolves
// to (spec.md §4.7).
type ContainerRef struct {
	AttemptID string
	TaskID    string
	ProjectID string
}

// Context is the snapshot returned to UIs and external callers
// (spec.md §4.7 "WorkspaceContext").
type Context struct {
	Attempt         store.TaskAttempt
	LatestProcess   *store.ExecutionProcess
	PendingApproval *store.ApprovalRequest
}

// Service exposes the Workspace/Attempt State operations.
type Service struct {
	store *store.Client
}

// New constructs a Service over an already-migrated store client.
func New(c *store.Client) *Service {
	return &Service{store: c}
}

// ResolveContainerRef parses an opaque reference produced by an external
// tool (an MCP call, a UI deep link) into the core's keys. The only
// opaque-ref scheme this module understands is a bare attempt id: richer
// schemes (e.g. encoding a worktree path) are an external concern per
// spec.md §1.
func (s *Service) ResolveContainerRef(ctx context.Context, opaqueRef string) (*ContainerRef, error) {
	attempt, err := s.store.GetAttempt(ctx, opaqueRef)
	if err != nil {
		return nil, fmt.Errorf("resolve container ref: %w", err)
	}
	return &ContainerRef{
		AttemptID: attempt.ID,
		TaskID:    attempt.TaskID,
		ProjectID: attempt.ProjectID,
	}, nil
}

// LoadContext builds the snapshot used by UIs and external callers.
// taskID and projectID are accepted to match the spec.md §4.7 signature
// but are not independently queried here: they are owned by an external
// subsystem (spec.md §1 "SQL schema... treated as external collaborators").
// They are neither checked against the attempt nor copied into the
// returned snapshot; the snapshot is built from attemptID alone.
func (s *Service) LoadContext(ctx context.Context, attemptID, taskID, projectID string) (*Context, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	snapshot := &Context{Attempt: *attempt}

	proc, err := s.store.LatestForAttempt(ctx, attemptID)
	if err != nil && err != store.ErrNotFound {
		return nil, fmt.Errorf("load context: latest process: %w", err)
	}
	if proc != nil {
		snapshot.LatestProcess = proc

		pending, err := s.store.ListPendingForExecution(ctx, proc.ID)
		if err != nil {
			return nil, fmt.Errorf("load context: pending approvals: %w", err)
		}
		if len(pending) > 0 {
			snapshot.PendingApproval = &pending[0]
		}
	}

	return snapshot, nil
}

// SetTaskStatusIfRunning is used by the approval bridge (spec.md §4.4) to
// move a task to InReview when an approval is raised. Task status itself
// lives in the external task-tracking subsystem (spec.md §1); this is a
// best-effort notification published on the Event Bus rather than a
// direct write to a table this module owns.
func (s *Service) SetTaskStatusIfRunning(ctx context.Context, bus eventbus.Publisher, executionID, newStatus string) error {
	proc, err := s.store.GetProcess(ctx, executionID)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if proc.Status != store.ProcessRunning {
		return nil
	}
	return bus.Publish(ctx, eventbus.Patch{
		Table: eventbus.TableTask,
		Op:    eventbus.OpUpdate,
		Record: map[string]string{
			"execution_id": executionID,
			"status":       newStatus,
		},
	})
}
