package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pulsar-labs/pulse/internal/store"
)

// TaskTopic is the pub/sub subject carrying progress for one task.
func TaskTopic(taskID string) string {
	return "task_notifications:" + taskID
}

// Publisher pushes JSON progress messages onto Redis pub/sub so the
// websocket relay can reach clients.
type Publisher struct {
	store  *store.Store
	logger *slog.Logger
}

func NewPublisher(st *store.Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:  st,
		logger: logger.With("component", "queue_publisher"),
	}
}

// Publish encodes payload as JSON and publishes it on subject.
func (p *Publisher) Publish(ctx context.Context, subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode progress message: %w", err)
	}
	if err := p.store.Publish(ctx, subject, raw); err != nil {
		return fmt.Errorf("publish progress message: %w", err)
	}
	return nil
}

// Progress publishes the standard task progress message shape.
func (p *Publisher) Progress(ctx context.Context, taskID, channel, status string, progress int, extra map[string]interface{}) {
	msg := map[string]interface{}{
		"task_id":  taskID,
		"channel":  channel,
		"status":   status,
		"progress": progress,
	}
	for k, v := range extra {
		msg[k] = v
	}
	if err := p.Publish(ctx, TaskTopic(taskID), msg); err != nil {
		p.logger.Warn("progress publish degraded", "task_id", taskID, "error", err)
	}
}
