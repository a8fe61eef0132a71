package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/queue"
)

// Deliverer runs deliver_webhook jobs: one HTTP attempt per job, with
// follow-up attempts enqueued as fresh delayed jobs.
type Deliverer struct {
	repo   *Repository
	sender *Sender
	queue  Enqueuer
	logger *slog.Logger
}

func NewDeliverer(repo *Repository, sender *Sender, q Enqueuer, logger *slog.Logger) *Deliverer {
	return &Deliverer{
		repo:   repo,
		sender: sender,
		queue:  q,
		logger: logger.With("component", "webhook_deliverer"),
	}
}

// Handle is registered with the queue worker under JobDeliverWebhook.
func (d *Deliverer) Handle(ctx context.Context, job *queue.Job) error {
	var args DeliveryArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return fmt.Errorf("decode delivery args: %w", err)
	}

	sub, err := d.repo.GetByID(ctx, args.SubscriptionID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		d.logger.Warn("dropping delivery for removed subscription", "subscription_id", args.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}
	if !sub.Active {
		d.logger.Info("skipping delivery to inactive subscription", "subscription_id", sub.ID)
		return nil
	}

	deliveryID := uuid.NewString()
	res := d.sender.Send(ctx, sub, args.EventType, deliveryID, args.Payload)

	record := d.buildRecord(sub, &args, res)

	switch {
	case res.Success():
		d.logger.Info("webhook delivered",
			"subscription_id", sub.ID,
			"event", args.EventType,
			"status", res.StatusCode,
			"attempt", args.Attempt,
		)
	case res.Permanent():
		d.logger.Warn("webhook rejected, not retrying",
			"subscription_id", sub.ID,
			"event", args.EventType,
			"status", res.StatusCode,
			"attempt", args.Attempt,
		)
	default:
		if args.Attempt <= sub.MaxRetries {
			delay := retryDelay(sub.RetryBackoff, args.Attempt)
			next := time.Now().UTC().Add(delay)
			record.WillRetry = true
			record.NextRetryAt = &next

			retry := args
			retry.Attempt++
			if _, err := d.queue.Enqueue(ctx, JobDeliverWebhook, retry, queue.EnqueueOptions{
				Delay:      delay,
				MaxRetries: sub.MaxRetries,
			}); err != nil {
				d.logger.Error("failed to schedule delivery retry",
					"subscription_id", sub.ID,
					"event", args.EventType,
					"error", err,
				)
				record.WillRetry = false
				record.NextRetryAt = nil
			} else {
				d.logger.Info("webhook delivery retry scheduled",
					"subscription_id", sub.ID,
					"event", args.EventType,
					"attempt", args.Attempt,
					"next_retry", next,
				)
			}
		} else {
			d.logger.Warn("webhook delivery exhausted retries",
				"subscription_id", sub.ID,
				"event", args.EventType,
				"attempts", args.Attempt,
			)
		}
	}

	if err := d.repo.RecordDelivery(ctx, record); err != nil {
		// The HTTP attempt already happened; rerunning the job would
		// deliver twice, so record loss is logged instead.
		d.logger.Error("failed to record webhook delivery",
			"subscription_id", sub.ID,
			"event", args.EventType,
			"error", err,
		)
	}
	return nil
}

func (d *Deliverer) buildRecord(sub *domain.WebhookSubscription, args *DeliveryArgs, res SendResult) *domain.WebhookDelivery {
	var payload map[string]interface{}
	_ = json.Unmarshal(args.Payload, &payload)

	durationMs := res.Duration.Milliseconds()
	record := &domain.WebhookDelivery{
		SubscriptionID: sub.ID,
		EventType:      args.EventType,
		Payload:        payload,
		URL:            sub.URL,
		Headers:        sub.Headers,
		DurationMs:     &durationMs,
		Success:        res.Success(),
		AttemptNumber:  args.Attempt,
	}

	if res.Err != nil {
		record.ErrorMessage = res.Err.Error()
		return record
	}

	status := res.StatusCode
	record.StatusCode = &status
	record.ResponseBody = res.ResponseBody
	if res.Success() {
		now := time.Now().UTC()
		record.DeliveredAt = &now
	} else {
		record.ErrorMessage = fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	return record
}

// retryDelay doubles the subscription backoff per attempt already made.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = domain.DefaultWebhookRetryBackoff
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
