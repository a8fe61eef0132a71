package queue

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	StatusQueued         = "queued"
	StatusInFlight       = "in_flight"
	StatusSucceeded      = "succeeded"
	StatusRetryScheduled = "retry_scheduled"
	StatusDead           = "dead"
	StatusCancelled      = "cancelled"
)

// Job is the durable record of one unit of background work.
type Job struct {
	ID          string          `json:"id"`
	Function    string          `json:"function"`
	Args        json.RawMessage `json:"args"`
	Status      string          `json:"status"`
	Attempt     int             `json:"attempt"`
	MaxRetries  int             `json:"max_retries"`
	Key         string          `json:"key,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	ScheduledAt time.Time       `json:"scheduled_at"`
}

// Terminal reports whether the job can no longer run.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusSucceeded, StatusDead, StatusCancelled:
		return true
	}
	return false
}

func (j *Job) fields() map[string]interface{} {
	return map[string]interface{}{
		"id":           j.ID,
		"function":     j.Function,
		"args":         string(j.Args),
		"status":       j.Status,
		"attempt":      j.Attempt,
		"max_retries":  j.MaxRetries,
		"key":          j.Key,
		"last_error":   j.LastError,
		"enqueued_at":  j.EnqueuedAt.UnixMilli(),
		"scheduled_at": j.ScheduledAt.UnixMilli(),
	}
}

func jobFromFields(m map[string]string) *Job {
	j := &Job{
		ID:        m["id"],
		Function:  m["function"],
		Args:      json.RawMessage(m["args"]),
		Status:    m["status"],
		Key:       m["key"],
		LastError: m["last_error"],
	}
	j.Attempt, _ = strconv.Atoi(m["attempt"])
	j.MaxRetries, _ = strconv.Atoi(m["max_retries"])
	if ms, err := strconv.ParseInt(m["enqueued_at"], 10, 64); err == nil {
		j.EnqueuedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(m["scheduled_at"], 10, 64); err == nil {
		j.ScheduledAt = time.UnixMilli(ms).UTC()
	}
	return j
}
