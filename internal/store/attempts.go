package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateAttempt inserts a new TaskAttempt. Callers pass a pre-generated id
// (google/uuid) so the row can be referenced before the INSERT returns.
func (c *Client) CreateAttempt(ctx context.Context, a TaskAttempt) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO task_attempts (id, task_id, project_id, target_branch)
		VALUES ($1, $2, $3, $4)`,
		a.ID, a.TaskID, a.ProjectID, a.TargetBranch)
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

// GetAttempt loads a TaskAttempt by id.
func (c *Client) GetAttempt(ctx context.Context, id string) (*TaskAttempt, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, task_id, project_id, target_branch, created_at, updated_at
		FROM task_attempts WHERE id = $1`, id)

	var a TaskAttempt
	if err := row.Scan(&a.ID, &a.TaskID, &a.ProjectID, &a.TargetBranch, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return &a, nil
}
