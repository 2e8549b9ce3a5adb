// Package queuedmsg implements the Queued-Message Service (C6): a
// per-workspace single-slot holding an optional follow-up draft, and the
// promotion logic that turns it into a new execution when the current
// one finishes (spec.md §4.6).
//
// Grounded on nickmisasi-mattermost-plugin-cursor/server/hitl.go's
// workflow.PendingFeedback single-slot field (accumulate-or-replace one
// pending draft per workflow) and pkg/session/manager.go's
// map+sync.Mutex in-memory registry shape, generalized here from one
// feedback string per workflow to one QueuedMessage per workspace.
package queuedmsg

import (
	"context"
	"errors"
	"sync"

	"github.com/codeready-toolchain/execflow/internal/eventbus"
	"github.com/codeready-toolchain/execflow/internal/store"
)

// Status is the tagged state of a workspace's queue slot (spec.md §3
// "QueuedMessage: Empty | Queued{payload, created_at}").
type Status struct {
	Queued    bool
	Draft     string
	CreatedAt int64 // unix nanos; avoids a direct time.Now() dependency in callers
}

// Spawner is the narrow Execution Pipeline surface promotion needs:
// start a new follow-up process continuing priorSessionID.
type Spawner interface {
	SpawnFollowUp(ctx context.Context, attemptID, priorSessionID, prompt string) error
}

// ErrNotEmpty is returned by nothing today but reserved for a future
// queue-depth-of-one enforcement at the HTTP layer; Service.Queue itself
// always overwrites per spec.md §4.6.
var ErrNotEmpty = errors.New("queuedmsg: slot occupied")

type slot struct {
	mu     sync.Mutex
	status Status
}

// Service holds one slot per workspace (attempt) id.
type Service struct {
	bus eventbus.Publisher

	mu    sync.Mutex
	slots map[string]*slot
}

// New constructs an empty Service.
func New(bus eventbus.Publisher) *Service {
	return &Service{bus: bus, slots: make(map[string]*slot)}
}

func (s *Service) slotFor(workspaceID string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[workspaceID]
	if !ok {
		sl = &slot{}
		s.slots[workspaceID] = sl
	}
	return sl
}

// Queue overwrites any prior queue entry with draft (spec.md §4.6).
func (s *Service) Queue(workspaceID, draft string, createdAtUnixNano int64) Status {
	sl := s.slotFor(workspaceID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.status = Status{Queued: true, Draft: draft, CreatedAt: createdAtUnixNano}
	return sl.status
}

// Cancel empties the slot.
func (s *Service) Cancel(workspaceID string) Status {
	sl := s.slotFor(workspaceID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.status = Status{}
	return sl.status
}

// CurrentStatus reports the slot's current state.
func (s *Service) CurrentStatus(workspaceID string) Status {
	sl := s.slotFor(workspaceID)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.status
}

// OnExecutionTerminal implements spec.md §4.6's promotion rule: if the
// slot is Empty, no-op; otherwise, on Completed, atomically take the slot
// and ask the pipeline to spawn a follow-up continuing priorSessionID —
// the take happens before the spawn call so a crash mid-promotion loses
// the draft rather than duplicating work (spec.md §4.6 invariant). On any
// other terminal status, the slot is cleared and an Event Bus
// notification is emitted instead.
func (s *Service) OnExecutionTerminal(ctx context.Context, spawner Spawner, workspaceID, attemptID string, terminalStatus store.ProcessStatus, priorSessionID string) error {
	sl := s.slotFor(workspaceID)

	sl.mu.Lock()
	current := sl.status
	if !current.Queued {
		sl.mu.Unlock()
		return nil
	}
	sl.status = Status{}
	sl.mu.Unlock()

	if terminalStatus != store.ProcessCompleted {
		if s.bus != nil {
			_ = s.bus.Publish(ctx, eventbus.Patch{
				Table: eventbus.TableTaskAttempt,
				Op:    eventbus.OpUpdate,
				Record: map[string]string{
					"workspace_id": workspaceID,
					"event":        "queue_dropped",
				},
			})
		}
		return nil
	}

	return spawner.SpawnFollowUp(ctx, attemptID, priorSessionID, current.Draft)
}
