package ratelimit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// unreachableClient returns a client whose commands always fail, which
// exercises the degraded (fail-open) path without a running store.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		MaxRetries:   -1,
	})
}

func TestLimitKey(t *testing.T) {
	assert.Equal(t, "rate_limit:10.0.0.1:default", limitKey("10.0.0.1", "default"))
	assert.Equal(t, "rate_limit:tenant-9:/tasks/", limitKey("tenant-9", "/tasks/"))
}

func TestCheck_ZeroLimitAlwaysAllows(t *testing.T) {
	l := NewLimiter(nil, slog.Default())

	res := l.Check(context.Background(), "10.0.0.1", "default", 0, time.Minute)
	assert.True(t, res.Allowed)

	res = l.Check(context.Background(), "10.0.0.1", "default", -5, time.Minute)
	assert.True(t, res.Allowed)
}

func TestCheck_FailsOpenWhenStoreDown(t *testing.T) {
	client := unreachableClient()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, slog.Default())
	res := l.Check(context.Background(), "10.0.0.1", "default", 10, time.Minute)

	assert.True(t, res.Allowed, "store failure must not reject requests")
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 10, res.Remaining)
}

func TestUsage_SurfacesStoreErrors(t *testing.T) {
	client := unreachableClient()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, slog.Default())
	_, err := l.Usage(context.Background(), "10.0.0.1", "default", time.Minute)
	assert.Error(t, err)
}

func TestReset_SurfacesStoreErrors(t *testing.T) {
	client := unreachableClient()
	defer func() { _ = client.Close() }()

	l := NewLimiter(client, slog.Default())
	assert.Error(t, l.Reset(context.Background(), "10.0.0.1", "default"))
}
