package domain

import "time"

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusCancelled  = "cancelled"
)

// Task mirrors a queued job in the database so callers can poll status
// without touching the shared store directly.
type Task struct {
	ID          int64                  `json:"id"`
	TaskID      string                 `json:"task_id"`
	TaskType    string                 `json:"task_type"`
	Status      string                 `json:"status"`
	Progress    int                    `json:"progress"`
	TaskData    map[string]interface{} `json:"task_data"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	UserID      *int64                 `json:"user_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}
