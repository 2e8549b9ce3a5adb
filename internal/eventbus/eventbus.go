// Package eventbus implements the Event Bus (C8): a process-wide record
// change broadcaster over PostgreSQL pg_notify/LISTEN, used by UIs and
// external tooling for reactivity (spec.md §4.8).
//
// Grounded on pkg/events/publisher.go (persist-then-notify ordering,
// typed publish helpers, best-effort/log-warn-don't-abort convention) and
// pkg/events/listener.go (dedicated LISTEN connection, generation-counted
// LISTEN/UNLISTEN, reconnect-with-backoff receive loop).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Op is the kind of change a patch describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table names carried on a Patch (spec.md §4.8).
const (
	TableTask             = "task"
	TableTaskAttempt      = "task_attempt"
	TableExecutionProcess = "execution_process"
	TableScratch          = "scratch"
	TableProject          = "project"
)

// Patch is one tagged delta broadcast on the bus.
type Patch struct {
	Table  string `json:"table"`
	Op     Op     `json:"op"`
	Record any    `json:"record"`
}

// globalChannel carries every patch; subscribers that only care about one
// row filter client-side, matching the donor's GlobalSessionsChannel +
// per-session-channel dual-publish pattern collapsed to a single topic
// here since this core has no per-row fan-out requirement beyond FIFO
// ordering per (table, row).
const globalChannel = "execflow_events"

// Publisher is the write side of the bus: Publish(ctx, patch) is called
// immediately after the durable write that produced patch has
// committed (spec.md §4.8 "writers publish a patch immediately after the
// durable write succeeds").
type Publisher interface {
	Publish(ctx context.Context, p Patch) error
}

// Notifier is satisfied by *store.Client: the one primitive the bus needs
// is a raw pg_notify call. store.Client.Notify issues it on the connection
// pool, as its own statement after the write it follows, not inside that
// write's transaction.
type Notifier interface {
	Notify(ctx context.Context, channel, payload string) error
}

// PgBus publishes patches via pg_notify. It does not persist patches
// itself — spec.md §4.8 explicitly does not require event replay; UIs
// query current state from the tables on attach and then follow live
// patches (spec.md §9 "Event Bus replay").
type PgBus struct {
	notifier Notifier
}

// New creates a PgBus over the given Notifier.
func New(notifier Notifier) *PgBus {
	return &PgBus{notifier: notifier}
}

// Publish serializes and sends p. Best-effort: a publish failure is
// returned to the caller, and the callers in this module discard it
// (mirroring the donor's publishSessionStatus, which treats Event Bus
// delivery as a non-fatal side channel), so it never aborts the write it
// followed.
func (b *PgBus) Publish(ctx context.Context, p Patch) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal event patch: %w", err)
	}
	if err := b.notifier.Notify(ctx, globalChannel, string(payload)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

// ChannelName exposes the NOTIFY channel name subscribers must LISTEN on.
func ChannelName() string { return globalChannel }
