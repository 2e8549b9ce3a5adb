package store

import (
	"context"
	"fmt"
)

// AppendLog inserts one log row scoped by execution id. It is the durable
// half of the Log Writer's "durability before visibility" contract
// (spec.md §4.2) — callers must not push to the Log Channel until this
// returns nil.
func (c *Client) AppendLog(ctx context.Context, executionID, payload string) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx, `
		INSERT INTO execution_process_logs (execution_id, payload, byte_length)
		VALUES ($1, $2, $3)
		RETURNING id`,
		executionID, payload, len(payload)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append log: %w", err)
	}
	return seq, nil
}

// LogsSince returns log rows for an execution with seq strictly greater
// than since, in insertion order — the reconstruction path for late
// subscribers and the snapshot HTTP endpoint (spec.md §6).
func (c *Client) LogsSince(ctx context.Context, executionID string, since int64) ([]ExecutionProcessLog, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, execution_id, inserted_at, payload, byte_length
		FROM execution_process_logs
		WHERE execution_id = $1 AND id > $2
		ORDER BY id ASC`, executionID, since)
	if err != nil {
		return nil, fmt.Errorf("logs since: %w", err)
	}
	defer rows.Close()

	var out []ExecutionProcessLog
	for rows.Next() {
		var l ExecutionProcessLog
		if err := rows.Scan(&l.Seq, &l.ExecutionID, &l.InsertedAt, &l.Payload, &l.ByteLength); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
