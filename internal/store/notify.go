package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Notify issues pg_notify(channel, payload) on the connection pool,
// satisfying eventbus.Notifier. PostgreSQL rejects NOTIFY payloads of
// 8000 bytes or more; neither this method nor eventbus.PgBus checks or
// shrinks the payload, so an oversized patch makes the call fail.
func (c *Client) Notify(ctx context.Context, channel, payload string) error {
	_, err := c.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	if err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// NotifyTx issues pg_notify on an open *sql.Tx, so it is only delivered
// once the surrounding transaction commits — the same ordering
// pkg/events/publisher.go's persistAndNotify relies on.
func NotifyTx(ctx context.Context, tx *sql.Tx, channel, payload string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	if err != nil {
		return fmt.Errorf("pg_notify in tx: %w", err)
	}
	return nil
}

// BeginTx starts a transaction for callers that need to persist a row and
// NOTIFY atomically (via NotifyTx). No caller in this module uses it: the
// pipeline's terminal update and the Event Bus publish run as separate
// statements.
func (c *Client) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}
