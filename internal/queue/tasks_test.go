package queue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsar-labs/pulse/internal/domain"
)

func TestTaskRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)
	now := time.Now().UTC()

	task := &domain.Task{
		TaskID:     "job-1",
		TaskType:   "send_email",
		Status:     domain.TaskStatusPending,
		TaskData:   map[string]interface{}{"to": "a@b.com"},
		MaxRetries: 3,
	}

	mock.ExpectQuery("INSERT INTO tasks").
		WithArgs(task.TaskID, task.TaskType, task.Status, task.Progress, task.TaskData, task.UserID, task.MaxRetries).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(7), now, now))

	require.NoError(t, repo.Create(context.Background(), task))
	assert.Equal(t, int64(7), task.ID)
	assert.Equal(t, now, task.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_GetByTaskID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{
			"id", "task_id", "task_type", "status", "progress", "task_data", "result", "error",
			"user_id", "retry_count", "max_retries", "created_at", "updated_at", "started_at", "completed_at",
		}).AddRow(
			int64(7), "job-1", "process_media", domain.TaskStatusProcessing, 50,
			map[string]interface{}{"media_id": float64(3)}, map[string]interface{}(nil), "",
			(*int64)(nil), 1, 3, now, now, &now, (*time.Time)(nil),
		)

		mock.ExpectQuery("SELECT (.+) FROM tasks").
			WithArgs("job-1").
			WillReturnRows(rows)

		task, err := repo.GetByTaskID(context.Background(), "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", task.TaskID)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		assert.Equal(t, 50, task.Progress)
		assert.NotNil(t, task.StartedAt)
		assert.Nil(t, task.CompletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM tasks").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByTaskID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Transitions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)
	ctx := context.Background()

	mock.ExpectExec("UPDATE tasks").
		WithArgs(domain.TaskStatusProcessing, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkStarted(ctx, "job-1"))

	mock.ExpectExec("UPDATE tasks").
		WithArgs(50, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.SetProgress(ctx, "job-1", 50))

	mock.ExpectExec("UPDATE tasks").
		WithArgs(domain.TaskStatusCompleted, []byte(nil), "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkCompleted(ctx, "job-1", nil))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)
	ctx := context.Background()

	t.Run("retryable keeps pending status", func(t *testing.T) {
		mock.ExpectExec("UPDATE tasks").
			WithArgs(domain.TaskStatusPending, "timeout", 1, "job-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, repo.MarkFailed(ctx, "job-1", "timeout", 1, false))
	})

	t.Run("final marks failed", func(t *testing.T) {
		mock.ExpectExec("UPDATE tasks").
			WithArgs(domain.TaskStatusFailed, "timeout", 4, "job-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		require.NoError(t, repo.MarkFailed(ctx, "job-1", "timeout", 4, true))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_MarkCancelled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)

	mock.ExpectExec("UPDATE tasks").
		WithArgs(domain.TaskStatusCancelled, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkCancelled(context.Background(), "job-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTaskRepository(mock)
	ctx := context.Background()

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM tasks").
			WithArgs("job-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		require.NoError(t, repo.Delete(ctx, "job-1"))
	})

	t.Run("missing task", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM tasks").
			WithArgs("missing").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		assert.ErrorIs(t, repo.Delete(ctx, "missing"), domain.ErrTaskNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
