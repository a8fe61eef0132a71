package queue

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testQueue(cfg Config) *Queue {
	return New(nil, cfg, slog.Default())
}

func TestBackoff(t *testing.T) {
	q := testQueue(Config{BaseBackoff: 5 * time.Second, MaxBackoff: time.Hour})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 3, want: 20 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 11, want: time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, q.backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_CapsAtMax(t *testing.T) {
	q := testQueue(Config{BaseBackoff: 5 * time.Second, MaxBackoff: 30 * time.Second})

	assert.Equal(t, 5*time.Second, q.backoff(1))
	assert.Equal(t, 10*time.Second, q.backoff(2))
	assert.Equal(t, 20*time.Second, q.backoff(3))
	assert.Equal(t, 30*time.Second, q.backoff(4))
	assert.Equal(t, 30*time.Second, q.backoff(50))
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.defaults()

	assert.Equal(t, 30*time.Second, cfg.Lease)
	assert.Equal(t, DefaultBaseBackoff, cfg.BaseBackoff)
	assert.Equal(t, time.Hour, cfg.MaxBackoff)
}

func TestReadyScore_OrdersByDueTime(t *testing.T) {
	earlier := time.Now().UTC()
	later := earlier.Add(time.Minute)

	assert.Less(t, readyScore(earlier, 5), readyScore(later, 1))
}

func TestReadyScore_BreaksTiesInEnqueueOrder(t *testing.T) {
	due := time.Now().UTC()

	assert.Less(t, readyScore(due, 1), readyScore(due, 2))
	assert.Less(t, readyScore(due, 2), readyScore(due, 999))
}

func TestJobFields_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := &Job{
		ID:          "job-1",
		Function:    "process_media",
		Args:        json.RawMessage(`{"media_id":7}`),
		Status:      StatusRetryScheduled,
		Attempt:     2,
		MaxRetries:  3,
		Key:         "media:7",
		LastError:   "timeout",
		EnqueuedAt:  now,
		ScheduledAt: now.Add(10 * time.Second),
	}

	fields := job.fields()
	asStrings := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			asStrings[k] = val
		case int:
			asStrings[k] = strconv.Itoa(val)
		case int64:
			asStrings[k] = strconv.FormatInt(val, 10)
		}
	}

	got := jobFromFields(asStrings)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Function, got.Function)
	assert.Equal(t, string(job.Args), string(got.Args))
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.Attempt, got.Attempt)
	assert.Equal(t, job.MaxRetries, got.MaxRetries)
	assert.Equal(t, job.Key, got.Key)
	assert.Equal(t, job.LastError, got.LastError)
	assert.True(t, job.EnqueuedAt.Equal(got.EnqueuedAt))
	assert.True(t, job.ScheduledAt.Equal(got.ScheduledAt))
}

func TestJobTerminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusQueued, false},
		{StatusInFlight, false},
		{StatusRetryScheduled, false},
		{StatusSucceeded, true},
		{StatusDead, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		job := &Job{Status: tt.status}
		assert.Equal(t, tt.terminal, job.Terminal(), tt.status)
	}
}
