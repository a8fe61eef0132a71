package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/pulsar-labs/pulse/internal/store"
)

const taskNotificationPattern = "task_notifications:*"

// Relay forwards task progress messages published on Redis to hub
// channels, so job workers in other processes reach connected clients.
type Relay struct {
	hub    *Hub
	store  *store.Store
	logger *slog.Logger
}

func NewRelay(hub *Hub, st *store.Store, logger *slog.Logger) *Relay {
	return &Relay{
		hub:    hub,
		store:  st,
		logger: logger.With("component", "ws_relay"),
	}
}

// Run subscribes to task notification topics and forwards each message
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	sub := r.store.PSubscribe(ctx, taskNotificationPattern)
	defer func() { _ = sub.Close() }()

	r.logger.Info("relay started", "pattern", taskNotificationPattern)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.forward(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (r *Relay) forward(topic string, payload []byte) {
	taskID := strings.TrimPrefix(topic, "task_notifications:")

	var data interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		r.logger.Warn("discarding malformed task notification", "topic", topic, "error", err)
		return
	}

	var probe struct {
		Channel string `json:"channel"`
	}
	_ = json.Unmarshal(payload, &probe)
	channel := probe.Channel
	if channel == "" || !r.hub.Allowed(channel) {
		channel = "tasks"
	}

	frame, err := json.Marshal(Envelope{
		Type:      FrameTaskNotification,
		Channel:   channel,
		Message:   taskID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return
	}
	r.hub.Broadcast(channel, nil, frame)
}
