package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsar-labs/pulse/internal/domain"
)

// PgxPool is the pool surface the task repository needs.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TaskRepository mirrors job lifecycle into the tasks table so task
// state survives queue retention and is queryable alongside app data.
type TaskRepository struct {
	db PgxPool
}

func NewTaskRepository(db PgxPool) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	query := `
		INSERT INTO tasks (task_id, task_type, status, progress, task_data, user_id, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		t.TaskID, t.TaskType, t.Status, t.Progress, t.TaskData, t.UserID, t.MaxRetries,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByTaskID(ctx context.Context, taskID string) (*domain.Task, error) {
	query := `
		SELECT id, task_id, task_type, status, progress, task_data, result, COALESCE(error, ''),
		       user_id, retry_count, max_retries, created_at, updated_at, started_at, completed_at
		FROM tasks
		WHERE task_id = $1
	`

	var t domain.Task
	err := r.db.QueryRow(ctx, query, taskID).Scan(
		&t.ID, &t.TaskID, &t.TaskType, &t.Status, &t.Progress, &t.TaskData, &t.Result, &t.Error,
		&t.UserID, &t.RetryCount, &t.MaxRetries, &t.CreatedAt, &t.UpdatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &t, nil
}

func (r *TaskRepository) MarkStarted(ctx context.Context, taskID string) error {
	query := `
		UPDATE tasks
		SET status = $1, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		WHERE task_id = $2
	`
	if _, err := r.db.Exec(ctx, query, domain.TaskStatusProcessing, taskID); err != nil {
		return fmt.Errorf("mark task started: %w", err)
	}
	return nil
}

func (r *TaskRepository) SetProgress(ctx context.Context, taskID string, progress int) error {
	query := `UPDATE tasks SET progress = $1, updated_at = NOW() WHERE task_id = $2`
	if _, err := r.db.Exec(ctx, query, progress, taskID); err != nil {
		return fmt.Errorf("set task progress: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, taskID string, result []byte) error {
	query := `
		UPDATE tasks
		SET status = $1, progress = 100, result = $2, error = NULL,
		    completed_at = NOW(), updated_at = NOW()
		WHERE task_id = $3
	`
	if _, err := r.db.Exec(ctx, query, domain.TaskStatusCompleted, result, taskID); err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkFailed(ctx context.Context, taskID, errMsg string, retryCount int, final bool) error {
	status := domain.TaskStatusPending
	query := `
		UPDATE tasks
		SET status = $1, error = $2, retry_count = $3, updated_at = NOW()
		WHERE task_id = $4
	`
	if final {
		status = domain.TaskStatusFailed
		query = `
			UPDATE tasks
			SET status = $1, error = $2, retry_count = $3, completed_at = NOW(), updated_at = NOW()
			WHERE task_id = $4
		`
	}
	if _, err := r.db.Exec(ctx, query, status, errMsg, retryCount, taskID); err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkCancelled(ctx context.Context, taskID string) error {
	query := `
		UPDATE tasks
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE task_id = $2
	`
	if _, err := r.db.Exec(ctx, query, domain.TaskStatusCancelled, taskID); err != nil {
		return fmt.Errorf("mark task cancelled: %w", err)
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, taskID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
