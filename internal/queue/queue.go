package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pulsar-labs/pulse/internal/domain"
)

const (
	readyKey    = "queue:ready"
	inflightKey = "queue:inflight"
	seqKey      = "queue:seq"

	jobKeyPrefix   = "queue:job:"
	leaseKeyPrefix = "queue:lease:"
	idemKeyPrefix  = "queue:key:"

	// Terminal job hashes and idempotency markers are retained long
	// enough for status polling, then expire.
	terminalRetention = 24 * time.Hour

	DefaultMaxRetries  = 3
	DefaultBaseBackoff = 5 * time.Second
)

func jobKey(id string) string   { return jobKeyPrefix + id }
func leaseKey(id string) string { return leaseKeyPrefix + id }
func idemKey(k string) string   { return idemKeyPrefix + k }

// EnqueueOptions tune a single enqueue call.
type EnqueueOptions struct {
	Delay      time.Duration
	Key        string
	MaxRetries int
}

// Config carries queue tuning knobs.
type Config struct {
	Lease       time.Duration
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (c *Config) defaults() {
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
}

// Queue is a Redis-backed durable job queue. Jobs live in hashes, the
// ready set is a ZSET scored by due time, and in-flight jobs hold a
// TTL lease that a reaper reclaims on expiry.
type Queue struct {
	client redis.Cmdable
	cfg    Config
	logger *slog.Logger
}

func New(client redis.Cmdable, cfg Config, logger *slog.Logger) *Queue {
	cfg.defaults()
	return &Queue{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "queue"),
	}
}

// readyScore orders the ready set by due time, breaking ties in
// enqueue order.
func readyScore(due time.Time, seq int64) float64 {
	return float64(due.UnixMilli()*1000 + seq%1000)
}

// Enqueue registers a job for function with JSON-encoded args. When
// opts.Key is set, a duplicate key of a still-pending job returns the
// original job id.
func (q *Queue) Enqueue(ctx context.Context, function string, args interface{}, opts EnqueueOptions) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode job args: %w", err)
	}

	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	id := uuid.NewString()

	if opts.Key != "" {
		set, err := q.client.SetNX(ctx, idemKey(opts.Key), id, terminalRetention).Result()
		if err != nil {
			return "", fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !set {
			existing, err := q.client.Get(ctx, idemKey(opts.Key)).Result()
			if err == nil && existing != "" {
				job, jerr := q.Status(ctx, existing)
				if jerr == nil && !job.Terminal() {
					return existing, nil
				}
			}
			// Stale marker for a finished job: take it over.
			if err := q.client.Set(ctx, idemKey(opts.Key), id, terminalRetention).Err(); err != nil {
				return "", fmt.Errorf("refresh idempotency key: %w", err)
			}
		}
	}

	now := time.Now().UTC()
	job := &Job{
		ID:          id,
		Function:    function,
		Args:        raw,
		Status:      StatusQueued,
		MaxRetries:  opts.MaxRetries,
		Key:         opts.Key,
		EnqueuedAt:  now,
		ScheduledAt: now.Add(opts.Delay),
	}

	seq, err := q.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", fmt.Errorf("allocate enqueue sequence: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(id), job.fields())
	pipe.ZAdd(ctx, readyKey, redis.Z{Score: readyScore(job.ScheduledAt, seq), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Info("job enqueued",
		"job_id", id,
		"function", function,
		"scheduled_at", job.ScheduledAt,
	)
	return id, nil
}

// Status loads the job record for id.
func (q *Queue) Status(ctx context.Context, id string) (*Job, error) {
	m, err := q.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if len(m) == 0 {
		return nil, domain.ErrTaskNotFound
	}
	return jobFromFields(m), nil
}

// Cancel removes a job that has not started yet. Jobs already running
// or finished are not cancellable.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.Status(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != StatusQueued && job.Status != StatusRetryScheduled {
		return domain.ErrTaskNotCancellable
	}

	removed, err := q.client.ZRem(ctx, readyKey, id).Result()
	if err != nil {
		return fmt.Errorf("remove job from ready set: %w", err)
	}
	if removed == 0 {
		// A worker claimed it between the status read and the removal.
		return domain.ErrTaskNotCancellable
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(id), "status", StatusCancelled)
	pipe.Expire(ctx, jobKey(id), terminalRetention)
	if job.Key != "" {
		pipe.Del(ctx, idemKey(job.Key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}

	q.logger.Info("job cancelled", "job_id", id, "function", job.Function)
	return nil
}

// claimDue pops up to n due jobs, taking a lease on each. A job is
// claimed only by the worker whose ZRem wins.
func (q *Queue) claimDue(ctx context.Context, workerID string, n int) ([]*Job, error) {
	now := time.Now().UTC()
	ids, err := q.client.ZRangeByScore(ctx, readyKey, &redis.ZRangeBy{
		Min:   "0",
		Max:   fmt.Sprintf("%d", (now.UnixMilli()+1)*1000),
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan ready set: %w", err)
	}

	var claimed []*Job
	for _, id := range ids {
		won, err := q.client.ZRem(ctx, readyKey, id).Result()
		if err != nil {
			return claimed, fmt.Errorf("claim job %s: %w", id, err)
		}
		if won == 0 {
			continue
		}

		pipe := q.client.TxPipeline()
		pipe.Set(ctx, leaseKey(id), workerID, q.cfg.Lease)
		pipe.HSet(ctx, jobKey(id), "status", StatusInFlight)
		pipe.ZAdd(ctx, inflightKey, redis.Z{Score: float64(now.UnixMilli()), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return claimed, fmt.Errorf("lease job %s: %w", id, err)
		}

		job, err := q.Status(ctx, id)
		if err != nil {
			q.logger.Error("claimed job vanished", "job_id", id, "error", err)
			continue
		}
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// extendLease refreshes the lease TTL while a handler is running.
func (q *Queue) extendLease(ctx context.Context, id string) error {
	ok, err := q.client.Expire(ctx, leaseKey(id), q.cfg.Lease).Result()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("lease for job %s expired", id)
	}
	return nil
}

func (q *Queue) markSucceeded(ctx context.Context, job *Job) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), "status", StatusSucceeded)
	pipe.Expire(ctx, jobKey(job.ID), terminalRetention)
	pipe.Del(ctx, leaseKey(job.ID))
	pipe.ZRem(ctx, inflightKey, job.ID)
	if job.Key != "" {
		pipe.Del(ctx, idemKey(job.Key))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	return nil
}

// backoff returns the delay after the attempt-th failure: base for the
// first retry, doubling each time after.
func (q *Queue) backoff(attempt int) time.Duration {
	d := q.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	return d
}

// markFailed records a failed attempt: schedule a retry with
// exponential backoff, or move the job to dead once retries run out.
func (q *Queue) markFailed(ctx context.Context, job *Job, cause error) (*Job, error) {
	job.Attempt++
	job.LastError = cause.Error()

	if job.Attempt > job.MaxRetries {
		job.Status = StatusDead
		pipe := q.client.TxPipeline()
		pipe.HSet(ctx, jobKey(job.ID), map[string]interface{}{
			"status":     StatusDead,
			"attempt":    job.Attempt,
			"last_error": job.LastError,
		})
		pipe.Expire(ctx, jobKey(job.ID), terminalRetention)
		pipe.Del(ctx, leaseKey(job.ID))
		pipe.ZRem(ctx, inflightKey, job.ID)
		if job.Key != "" {
			pipe.Del(ctx, idemKey(job.Key))
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return job, fmt.Errorf("bury job %s: %w", job.ID, err)
		}
		q.logger.Warn("job moved to dead",
			"job_id", job.ID,
			"function", job.Function,
			"attempts", job.Attempt,
			"error", job.LastError,
		)
		return job, nil
	}

	delay := q.backoff(job.Attempt)
	job.Status = StatusRetryScheduled
	job.ScheduledAt = time.Now().UTC().Add(delay)

	seq, err := q.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return job, fmt.Errorf("allocate retry sequence: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), map[string]interface{}{
		"status":       StatusRetryScheduled,
		"attempt":      job.Attempt,
		"last_error":   job.LastError,
		"scheduled_at": job.ScheduledAt.UnixMilli(),
	})
	pipe.Del(ctx, leaseKey(job.ID))
	pipe.ZRem(ctx, inflightKey, job.ID)
	pipe.ZAdd(ctx, readyKey, redis.Z{Score: readyScore(job.ScheduledAt, seq), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return job, fmt.Errorf("schedule retry for job %s: %w", job.ID, err)
	}

	q.logger.Info("job scheduled for retry",
		"job_id", job.ID,
		"function", job.Function,
		"attempt", job.Attempt,
		"next_run", job.ScheduledAt,
	)
	return job, nil
}

// requeueExpired returns in-flight jobs whose lease lapsed to the
// ready set. Crashed workers lose their claim here.
func (q *Queue) requeueExpired(ctx context.Context) error {
	ids, err := q.client.ZRange(ctx, inflightKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("scan in-flight set: %w", err)
	}

	for _, id := range ids {
		held, err := q.client.Exists(ctx, leaseKey(id)).Result()
		if err != nil {
			return fmt.Errorf("check lease %s: %w", id, err)
		}
		if held > 0 {
			continue
		}

		seq, err := q.client.Incr(ctx, seqKey).Result()
		if err != nil {
			return fmt.Errorf("allocate requeue sequence: %w", err)
		}

		now := time.Now().UTC()
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, inflightKey, id)
		pipe.HSet(ctx, jobKey(id), map[string]interface{}{
			"status":       StatusQueued,
			"scheduled_at": now.UnixMilli(),
		})
		pipe.ZAdd(ctx, readyKey, redis.Z{Score: readyScore(now, seq), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("requeue job %s: %w", id, err)
		}

		q.logger.Warn("reclaimed job with expired lease", "job_id", id)
	}
	return nil
}
