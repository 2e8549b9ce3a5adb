package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// CreateRunning inserts a new ExecutionProcess in the Running state. The
// partial unique index idx_execution_processes_one_running_per_attempt
// enforces the "only one Running process per attempt" invariant (spec.md
// §4.5.3) at the database level; a violation here is translated to
// ErrAttemptBusy so the pipeline can surface it as a 409 conflict rather
// than a generic I/O error.
func (c *Client) CreateRunning(ctx context.Context, p ExecutionProcess) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO execution_processes (id, attempt_id, run_kind, status, started_at)
		VALUES ($1, $2, $3, 'running', $4)`,
		p.ID, p.AttemptID, p.RunKind, p.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAttemptBusy
		}
		return fmt.Errorf("create running process: %w", err)
	}
	return nil
}

// GetProcess loads an ExecutionProcess by id.
func (c *Client) GetProcess(ctx context.Context, id string) (*ExecutionProcess, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, attempt_id, run_kind, status, executor_session_id, exit_code, started_at, completed_at
		FROM execution_processes WHERE id = $1`, id)
	return scanProcess(row)
}

// LatestForAttempt returns the most recently started process for an
// attempt, or ErrNotFound if the attempt has never spawned one.
func (c *Client) LatestForAttempt(ctx context.Context, attemptID string) (*ExecutionProcess, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, attempt_id, run_kind, status, executor_session_id, exit_code, started_at, completed_at
		FROM execution_processes WHERE attempt_id = $1
		ORDER BY started_at DESC LIMIT 1`, attemptID)
	return scanProcess(row)
}

func scanProcess(row *sql.Row) (*ExecutionProcess, error) {
	var p ExecutionProcess
	if err := row.Scan(&p.ID, &p.AttemptID, &p.RunKind, &p.Status, &p.ExecutorSessionID, &p.ExitCode, &p.StartedAt, &p.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan process: %w", err)
	}
	return &p, nil
}

// SetExecutorSessionID performs the one-shot UPDATE that persists the
// adapter-assigned session id on a SessionId log message (spec.md §4.5.3).
// It only succeeds while the process is Running and has no session id yet;
// any other state returns ErrSessionIDSet so callers can tell "already set"
// apart from "row missing".
func (c *Client) SetExecutorSessionID(ctx context.Context, processID, sessionID string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE execution_processes
		SET executor_session_id = $2
		WHERE id = $1 AND status = 'running' AND executor_session_id IS NULL`,
		processID, sessionID)
	if err != nil {
		return fmt.Errorf("set executor session id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set executor session id: %w", err)
	}
	if n == 0 {
		return ErrSessionIDSet
	}
	return nil
}

// UpdateTerminal persists the terminal status, exit code, and completion
// timestamp in a single UPDATE (spec.md §4.5.4 step 2). Only a Running row
// is eligible — a second call on an already-terminal row is a no-op that
// reports ErrProcessNotRunning so the pipeline's bounded retry logic can
// tell "already applied" from "still failing".
func (c *Client) UpdateTerminal(ctx context.Context, processID string, status ProcessStatus, exitCode *int) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE execution_processes
		SET status = $2, exit_code = $3, completed_at = now()
		WHERE id = $1 AND status = 'running'`,
		processID, status, exitCode)
	if err != nil {
		return fmt.Errorf("update terminal status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update terminal status: %w", err)
	}
	if n == 0 {
		return ErrProcessNotRunning
	}
	return nil
}

// StaleRunning returns processes still Running whose started_at predates
// the given cutoff, used by the pipeline's startup/periodic orphan scan
// (spec.md §5 multi-instance constraint; grounded on
// pkg/queue/orphan.go's detectAndRecoverOrphans).
func (c *Client) StaleRunning(ctx context.Context, cutoff time.Time) ([]ExecutionProcess, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, attempt_id, run_kind, status, executor_session_id, exit_code, started_at, completed_at
		FROM execution_processes WHERE status = 'running' AND started_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale running: %w", err)
	}
	defer rows.Close()

	var out []ExecutionProcess
	for rows.Next() {
		var p ExecutionProcess
		if err := rows.Scan(&p.ID, &p.AttemptID, &p.RunKind, &p.Status, &p.ExecutorSessionID, &p.ExitCode, &p.StartedAt, &p.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan stale running: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
