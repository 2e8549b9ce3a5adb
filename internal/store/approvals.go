package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateApproval inserts a new Pending approval.
func (c *Client) CreateApproval(ctx context.Context, a ApprovalRequest) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO approvals (id, execution_id, tool_name, tool_input, tool_call_id, status, deadline_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
		a.ID, a.ExecutionID, a.ToolName, a.ToolInput, a.ToolCallID, a.DeadlineAt)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetApproval loads an approval by id.
func (c *Client) GetApproval(ctx context.Context, id string) (*ApprovalRequest, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, execution_id, tool_name, tool_input, tool_call_id, status, reviewer_id, reason, deadline_at, created_at, resolved_at
		FROM approvals WHERE id = $1`, id)
	return scanApproval(row)
}

// ListByExecution returns all approvals raised for one execution.
func (c *Client) ListByExecution(ctx context.Context, executionID string) ([]ApprovalRequest, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, execution_id, tool_name, tool_input, tool_call_id, status, reviewer_id, reason, deadline_at, created_at, resolved_at
		FROM approvals WHERE execution_id = $1 ORDER BY created_at ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		a, err := scanApprovalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListPendingForExecution returns the still-Pending approvals for an
// execution — used when a process terminates and its pending approvals
// must be cancelled (spec.md §4.5.4 step 4).
func (c *Client) ListPendingForExecution(ctx context.Context, executionID string) ([]ApprovalRequest, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, execution_id, tool_name, tool_input, tool_call_id, status, reviewer_id, reason, deadline_at, created_at, resolved_at
		FROM approvals WHERE execution_id = $1 AND status = 'pending'`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		a, err := scanApprovalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListPendingPastDeadline returns Pending approvals whose deadline has
// passed, for the timekeeper's expiry sweep (spec.md §4.4).
func (c *Client) ListPendingPastDeadline(ctx context.Context) ([]ApprovalRequest, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, execution_id, tool_name, tool_input, tool_call_id, status, reviewer_id, reason, deadline_at, created_at, resolved_at
		FROM approvals WHERE status = 'pending' AND deadline_at < now()`)
	if err != nil {
		return nil, fmt.Errorf("list expired approvals: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		a, err := scanApprovalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Resolve performs the CAS transition Pending -> outcome (spec.md §4.4,
// §8 property 5). Exactly one concurrent caller observes success; all
// others observe ErrAlreadyResolved, distinguishing a genuine race from a
// missing id.
func (c *Client) Resolve(ctx context.Context, id string, outcome ApprovalStatus, reviewerID, reason *string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE approvals
		SET status = $2, reviewer_id = $3, reason = $4, resolved_at = now()
		WHERE id = $1 AND status = 'pending'`,
		id, outcome, reviewerID, reason)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	if n == 0 {
		if _, err := c.GetApproval(ctx, id); err != nil {
			return err // ErrNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

func scanApproval(row *sql.Row) (*ApprovalRequest, error) {
	var a ApprovalRequest
	err := row.Scan(&a.ID, &a.ExecutionID, &a.ToolName, &a.ToolInput, &a.ToolCallID, &a.Status, &a.ReviewerID, &a.Reason, &a.DeadlineAt, &a.CreatedAt, &a.ResolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	return &a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApprovalRow(rows rowScanner) (*ApprovalRequest, error) {
	var a ApprovalRequest
	err := rows.Scan(&a.ID, &a.ExecutionID, &a.ToolName, &a.ToolInput, &a.ToolCallID, &a.Status, &a.ReviewerID, &a.Reason, &a.DeadlineAt, &a.CreatedAt, &a.ResolvedAt)
	if err != nil {
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	return &a, nil
}
