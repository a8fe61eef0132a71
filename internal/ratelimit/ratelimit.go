package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result describes one admission decision.
type Result struct {
	Allowed      bool
	Limit        int
	Remaining    int
	CurrentUsage int
	ResetAt      time.Time
	RetryAfter   time.Duration
}

// Limiter is a sliding-window rate limiter over a Redis sorted set:
// one member per admitted request, scored by arrival time, pruned to
// the window on every check.
type Limiter struct {
	client redis.Cmdable
	logger *slog.Logger
}

func NewLimiter(client redis.Cmdable, logger *slog.Logger) *Limiter {
	return &Limiter{
		client: client,
		logger: logger.With("component", "ratelimit"),
	}
}

func limitKey(identity, class string) string {
	return fmt.Sprintf("rate_limit:%s:%s", identity, class)
}

// Check admits or rejects one request for identity within class. A
// store failure admits the request: limiting degrades before the API
// does.
func (l *Limiter) Check(ctx context.Context, identity, class string, limit int, window time.Duration) Result {
	if limit <= 0 {
		return Result{Allowed: true, Limit: limit}
	}

	now := time.Now()
	key := limitKey(identity, class)
	windowStart := now.Add(-window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit degraded, allowing request",
			"subsystem", "ratelimit",
			"identity", identity,
			"class", class,
			"error", err,
		)
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}

	count := int(countCmd.Val())
	res := Result{
		Limit:        limit,
		CurrentUsage: count,
		ResetAt:      now.Add(window),
	}

	if count >= limit {
		res.Allowed = false
		res.Remaining = 0
		res.RetryAfter = l.retryAfter(ctx, key, now, window)
		return res
	}

	admit := l.client.TxPipeline()
	admit.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
	})
	admit.Expire(ctx, key, window+10*time.Second)
	if _, err := admit.Exec(ctx); err != nil {
		l.logger.Warn("rate limit degraded, allowing request",
			"subsystem", "ratelimit",
			"identity", identity,
			"class", class,
			"error", err,
		)
	}

	res.Allowed = true
	res.CurrentUsage = count + 1
	res.Remaining = limit - count - 1
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	return res
}

// retryAfter derives the wait from the oldest entry still inside the
// window: once it ages out, a slot opens.
func (l *Limiter) retryAfter(ctx context.Context, key string, now time.Time, window time.Duration) time.Duration {
	entries, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(entries) == 0 {
		return window
	}
	oldest := time.UnixMilli(int64(entries[0].Score))
	wait := oldest.Add(window).Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// Reset clears the window for identity within class.
func (l *Limiter) Reset(ctx context.Context, identity, class string) error {
	if err := l.client.Del(ctx, limitKey(identity, class)).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

// Usage returns the current in-window count without admitting anything.
func (l *Limiter) Usage(ctx context.Context, identity, class string, window time.Duration) (int, error) {
	now := time.Now()
	key := limitKey(identity, class)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("read rate limit usage: %w", err)
	}
	return int(countCmd.Val()), nil
}
