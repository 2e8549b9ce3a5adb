package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listener runs a dedicated LISTEN connection and fans out NOTIFY
// payloads to in-process subscribers. Grounded on
// pkg/events/listener.go's NotifyListener: one goroutine owns the pgx
// connection (avoiding the "conn busy" race between WaitForNotification
// and Exec), with reconnect-with-backoff on connection loss.
type Listener struct {
	dsn     string
	channel string

	mu   sync.Mutex
	subs map[chan Patch]struct{}
}

// NewListener creates a Listener for the bus's global channel. dsn must
// be a dedicated connection string (not the pooled *sql.DB) since
// LISTEN/NOTIFY requires holding one connection open for the session.
func NewListener(dsn string) *Listener {
	return &Listener{dsn: dsn, channel: ChannelName(), subs: make(map[chan Patch]struct{})}
}

// Subscribe registers a new in-process subscriber. The returned channel
// is closed when ctx is done; callers must range over it.
func (l *Listener) Subscribe(ctx context.Context) <-chan Patch {
	ch := make(chan Patch, 64)
	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, ch)
		l.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (l *Listener) broadcast(p Patch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.subs {
		select {
		case ch <- p:
		default:
			// Slow subscriber: drop for it alone, same backpressure
			// contract as the Log Channel (spec.md §4.1, reused here
			// since the Event Bus makes no stronger delivery promise
			// than "subscribers receive all patches published after
			// subscription time").
		}
	}
}

// Run connects and processes notifications until ctx is cancelled,
// reconnecting after a fixed one-second pause on connection loss.
func (l *Listener) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.runOnce(ctx); err != nil {
			slog.Error("event bus listener error", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (l *Listener) runOnce(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	sanitized := pgx.Identifier{l.channel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
		return err
	}
	slog.Info("event bus listener subscribed", "channel", l.channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var p Patch
		if err := json.Unmarshal([]byte(notification.Payload), &p); err != nil {
			slog.Warn("event bus: malformed notify payload", "error", err)
			continue
		}
		l.broadcast(p)
	}
}
