package logwriter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/execflow/internal/logchannel"
)

// ErrFinished is returned by Write once a Finished message has already
// been written — spec.md §4.2's "once Finished has been written no
// further writes are accepted" invariant.
var ErrFinished = errors.New("log writer: execution already finished")

// LogStore is the durability dependency of a Writer — satisfied by
// *store.Client. Narrowed to the one method used, so unit tests can fake
// persistence without a database.
type LogStore interface {
	AppendLog(ctx context.Context, executionID, payload string) (int64, error)
}

// Writer couples a Log Channel to durable storage for one execution.
// Every write is persisted before it is pushed to the channel — durability
// before visibility (spec.md §4.2).
type Writer struct {
	store       LogStore
	channel     *logchannel.Channel
	executionID string

	mu       sync.Mutex
	finished bool
}

// New creates a Writer scoped to one execution's Log Channel.
func New(store LogStore, channel *logchannel.Channel, executionID string) *Writer {
	return &Writer{store: store, channel: channel, executionID: executionID}
}

// Write persists msg as one JSON-line row, then pushes it to the Log
// Channel. Durability before visibility: if the append fails, push is
// never attempted.
func (w *Writer) Write(ctx context.Context, msg Msg) error {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return ErrFinished
	}
	if msg.Kind == KindFinished {
		w.finished = true
	}
	w.mu.Unlock()

	line, err := MarshalLine(msg)
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	if _, err := w.store.AppendLog(ctx, w.executionID, line); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	w.channel.Push(msg)
	if msg.Kind == KindFinished {
		w.channel.Close()
	}
	return nil
}

// WriteBatch writes each message in order. Semantically equivalent to a
// sequence of Write calls (spec.md §4.2); callers needing coalesced
// storage should have the persistence layer combine rows, which this
// implementation does not attempt — each message remains one row.
func (w *Writer) WriteBatch(ctx context.Context, msgs []Msg) error {
	for _, m := range msgs {
		if err := w.Write(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// WriteStdout is a convenience wrapper.
func (w *Writer) WriteStdout(ctx context.Context, s string) error { return w.Write(ctx, Stdout(s)) }

// WriteStderr is a convenience wrapper.
func (w *Writer) WriteStderr(ctx context.Context, s string) error { return w.Write(ctx, Stderr(s)) }

// WriteSessionID is a convenience wrapper.
func (w *Writer) WriteSessionID(ctx context.Context, s string) error {
	return w.Write(ctx, SessionID(s))
}

// WriteFinished is a convenience wrapper.
func (w *Writer) WriteFinished(ctx context.Context) error { return w.Write(ctx, Finished()) }

// AsyncWriter returns a line-oriented byte sink over this Writer: buffers
// incoming bytes and flushes one raw Write per newline-terminated line
// (spec.md §4.2 async_writer()).
func (w *Writer) AsyncWriter(ctx context.Context, stream Stream) *LineSplitter {
	return newLineSplitter(ctx, w, stream)
}

// Stream distinguishes which convenience writer a LineSplitter's flushed
// lines are written through.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)
