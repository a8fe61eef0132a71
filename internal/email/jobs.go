package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulsar-labs/pulse/internal/queue"
	"github.com/pulsar-labs/pulse/internal/ratelimit"
	"github.com/pulsar-labs/pulse/internal/webhook"
)

const (
	JobSendEmail     = "send_email"
	JobSendBulkEmail = "send_bulk_email"

	bulkClass = "email_bulk"
)

// SendArgs is the send_email job payload.
type SendArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BulkArgs is the send_bulk_email job payload.
type BulkArgs struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
}

// EventEmitter is the webhook surface the jobs need.
type EventEmitter interface {
	TriggerEvent(ctx context.Context, event string, data interface{}) error
}

// BulkLimit is the per-sender budget applied inside bulk sends.
type BulkLimit struct {
	Max    int
	Window time.Duration
}

// Jobs holds the queue handlers for outbound email.
type Jobs struct {
	mailer    Mailer
	limiter   *ratelimit.Limiter
	bulkLimit BulkLimit
	publisher *queue.Publisher
	events    EventEmitter
	logger    *slog.Logger
}

func NewJobs(mailer Mailer, limiter *ratelimit.Limiter, bulkLimit BulkLimit, publisher *queue.Publisher, events EventEmitter, logger *slog.Logger) *Jobs {
	if bulkLimit.Max <= 0 {
		bulkLimit.Max = 5
	}
	if bulkLimit.Window <= 0 {
		bulkLimit.Window = time.Hour
	}
	return &Jobs{
		mailer:    mailer,
		limiter:   limiter,
		bulkLimit: bulkLimit,
		publisher: publisher,
		events:    events,
		logger:    logger.With("component", "email_jobs"),
	}
}

// HandleSend is registered under JobSendEmail.
func (j *Jobs) HandleSend(ctx context.Context, job *queue.Job) error {
	var args SendArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return fmt.Errorf("decode email job args: %w", err)
	}
	if args.To == "" {
		return fmt.Errorf("email job has no recipient")
	}

	err := j.mailer.Send(ctx, &Message{
		To:      []string{args.To},
		Subject: args.Subject,
		Body:    args.Body,
	})
	if err != nil {
		j.emit(ctx, webhook.EventEmailFailed, map[string]interface{}{
			"to":      args.To,
			"subject": args.Subject,
			"error":   err.Error(),
		})
		return err
	}

	j.emit(ctx, webhook.EventEmailSent, map[string]interface{}{
		"to":      args.To,
		"subject": args.Subject,
	})
	j.logger.Info("email sent", "to", args.To)
	return nil
}

// HandleBulk is registered under JobSendBulkEmail. Recipients are
// worked through the limiter's email_bulk class, waiting out denials
// rather than dropping recipients.
func (j *Jobs) HandleBulk(ctx context.Context, job *queue.Job) error {
	var args BulkArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return fmt.Errorf("decode bulk email job args: %w", err)
	}
	if len(args.Recipients) == 0 {
		return fmt.Errorf("bulk email job has no recipients")
	}

	total := len(args.Recipients)
	sent, failed := 0, 0

	for i, to := range args.Recipients {
		if err := j.waitForSlot(ctx, job.ID); err != nil {
			return err
		}

		err := j.mailer.Send(ctx, &Message{
			To:      []string{to},
			Subject: args.Subject,
			Body:    args.Body,
		})
		if err != nil {
			failed++
			j.logger.Warn("bulk email recipient failed", "to", to, "error", err)
			j.emit(ctx, webhook.EventEmailFailed, map[string]interface{}{
				"to":      to,
				"subject": args.Subject,
				"error":   err.Error(),
			})
		} else {
			sent++
			j.emit(ctx, webhook.EventEmailSent, map[string]interface{}{
				"to":      to,
				"subject": args.Subject,
			})
		}

		j.publisher.Progress(ctx, job.ID, "tasks", "processing", (i+1)*100/total, map[string]interface{}{
			"sent":   sent,
			"failed": failed,
			"total":  total,
		})
	}

	j.emit(ctx, webhook.EventBulkEmailCompleted, map[string]interface{}{
		"subject": args.Subject,
		"total":   total,
		"sent":    sent,
		"failed":  failed,
	})

	j.logger.Info("bulk email completed", "total", total, "sent", sent, "failed", failed)
	return nil
}

// waitForSlot blocks until the bulk limiter admits one more send.
func (j *Jobs) waitForSlot(ctx context.Context, jobID string) error {
	for {
		res := j.limiter.Check(ctx, "sender", bulkClass, j.bulkLimit.Max, j.bulkLimit.Window)
		if res.Allowed {
			return nil
		}

		wait := res.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		j.logger.Info("bulk email throttled", "job_id", jobID, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (j *Jobs) emit(ctx context.Context, event string, data map[string]interface{}) {
	if err := j.events.TriggerEvent(ctx, event, data); err != nil {
		j.logger.Warn("event fan-out degraded", "event", event, "error", err)
	}
}
