package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/queue"
)

// JobDeliverWebhook is the queue function name for delivery attempts.
const JobDeliverWebhook = "deliver_webhook"

// Enqueuer is the queue surface the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, function string, args interface{}, opts queue.EnqueueOptions) (string, error)
}

// Dispatcher fans an application event out to matching subscriptions
// by enqueuing one delivery job each.
type Dispatcher struct {
	repo   *Repository
	queue  Enqueuer
	source string
	logger *slog.Logger
}

func NewDispatcher(repo *Repository, q Enqueuer, source string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		queue:  q,
		source: source,
		logger: logger.With("component", "webhook_dispatcher"),
	}
}

// TriggerEvent builds the payload once, so every subscriber and every
// retry carries the same event id and timestamp.
func (d *Dispatcher) TriggerEvent(ctx context.Context, event string, data interface{}) error {
	if !IsRegistered(event) {
		return domain.ErrUnknownEvent.WithError(fmt.Errorf("event %q", event))
	}

	subs, err := d.repo.ListActiveForEvent(ctx, event)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	payload, err := CanonicalJSON(NewPayload(event, d.source, data))
	if err != nil {
		return err
	}

	fields := dataFields(payload)

	enqueued := 0
	for _, sub := range subs {
		if !matchesFilters(sub.Filters, fields) {
			continue
		}
		args := DeliveryArgs{
			SubscriptionID: sub.ID,
			EventType:      event,
			Payload:        payload,
			Attempt:        1,
		}
		if _, err := d.queue.Enqueue(ctx, JobDeliverWebhook, args, queue.EnqueueOptions{
			MaxRetries: sub.MaxRetries,
		}); err != nil {
			d.logger.Error("failed to enqueue webhook delivery",
				"event", event,
				"subscription_id", sub.ID,
				"error", err,
			)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		d.logger.Info("event dispatched", "event", event, "deliveries", enqueued)
	}
	return nil
}

// dataFields extracts the payload's data object for filter matching.
func dataFields(payload []byte) map[string]interface{} {
	var probe struct {
		Data map[string]interface{} `json:"data"`
	}
	_ = json.Unmarshal(payload, &probe)
	return probe.Data
}

// matchesFilters applies top-level equality: every filter key must be
// present in the event data with an equal value.
func matchesFilters(filters, data map[string]interface{}) bool {
	if len(filters) == 0 {
		return true
	}
	for k, want := range filters {
		got, ok := data[k]
		if !ok || !reflect.DeepEqual(want, got) {
			return false
		}
	}
	return true
}
