package middleware

import (
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsar-labs/pulse/internal/ratelimit"
)

// The limiter fails open when the store is unreachable, so the
// middleware can be exercised end to end without a running store: every
// request is admitted and the headers reflect the matched budget.
func testLimiter() *ratelimit.Limiter {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		MaxRetries:   -1,
	})
	return ratelimit.NewLimiter(client, slog.Default())
}

func newTestApp(config RateLimiterConfig) *fiber.App {
	app := fiber.New()
	app.Use(RateLimiter(testLimiter(), config))
	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Get("/health", ok)
	app.Get("/users", ok)
	app.Post("/tasks/email/bulk", ok)
	app.Post("/tasks/email/send", ok)
	app.Post("/media/upload", ok)
	return app
}

func TestRateLimiter_SetsHeaders(t *testing.T) {
	app := newTestApp(DefaultRateLimiterConfig(100, time.Minute))

	resp, err := app.Test(httptest.NewRequest("GET", "/users", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_MatchesLongestPrefix(t *testing.T) {
	app := newTestApp(DefaultRateLimiterConfig(100, time.Minute))

	tests := []struct {
		method    string
		path      string
		wantLimit string
	}{
		{"POST", "/tasks/email/bulk", "5"},
		{"POST", "/tasks/email/send", "50"},
		{"POST", "/media/upload", "30"},
		{"GET", "/users", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.wantLimit, resp.Header.Get("X-RateLimit-Limit"))
		})
	}
}

func TestRateLimiter_ExcludedPathsSkipLimiting(t *testing.T) {
	app := newTestApp(DefaultRateLimiterConfig(100, time.Minute))

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
}

func TestRateLimiter_CustomKeyGenerator(t *testing.T) {
	var seen string
	config := RateLimiterConfig{
		Max:    10,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			seen = c.Get("X-Client-ID")
			return seen
		},
	}
	app := newTestApp(config)

	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set("X-Client-ID", "client-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, "client-42", seen)
}

func TestRateLimiter_ZeroConfigFallsBackToDefaults(t *testing.T) {
	app := newTestApp(RateLimiterConfig{})

	resp, err := app.Test(httptest.NewRequest("GET", "/users", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", resp.Header.Get("X-RateLimit-Limit"))
}
