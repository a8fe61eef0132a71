package middleware

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/ratelimit"
)

// RateLimitRule binds a path prefix to its own budget.
type RateLimitRule struct {
	Prefix string
	Max    int
	Window time.Duration
}

// RateLimiterConfig configures the limiter middleware.
type RateLimiterConfig struct {
	// Default budget for paths without a matching rule.
	Max    int
	Window time.Duration
	// Rules override the default; the longest matching prefix wins.
	Rules []RateLimitRule
	// Exclude lists path prefixes that are never limited.
	Exclude []string
	// KeyGenerator derives the caller identity. Defaults to client IP.
	KeyGenerator func(c *fiber.Ctx) string
}

// DefaultRateLimiterConfig carries the standard per-endpoint budgets.
func DefaultRateLimiterConfig(max int, window time.Duration) RateLimiterConfig {
	return RateLimiterConfig{
		Max:    max,
		Window: window,
		Rules: []RateLimitRule{
			{Prefix: "/tasks/email/bulk", Max: 5, Window: time.Hour},
			{Prefix: "/tasks/", Max: 50, Window: time.Minute},
			{Prefix: "/media/upload", Max: 30, Window: time.Minute},
		},
		Exclude: []string{"/health", "/ready", "/metrics", "/docs", "/swagger"},
	}
}

// RateLimiter admits requests through the shared sliding-window
// limiter, classifying each request by its matched path prefix.
func RateLimiter(limiter *ratelimit.Limiter, config RateLimiterConfig) fiber.Handler {
	if config.Max <= 0 {
		config.Max = 100
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}

	// Longest prefix first so /tasks/email/bulk beats /tasks/.
	rules := make([]RateLimitRule, len(config.Rules))
	copy(rules, config.Rules)
	sort.Slice(rules, func(i, j int) bool {
		return len(rules[i].Prefix) > len(rules[j].Prefix)
	})

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, prefix := range config.Exclude {
			if strings.HasPrefix(path, prefix) {
				return c.Next()
			}
		}

		class := "default"
		max := config.Max
		window := config.Window
		for _, rule := range rules {
			if strings.HasPrefix(path, rule.Prefix) {
				class = rule.Prefix
				max = rule.Max
				window = rule.Window
				break
			}
		}

		identity := config.KeyGenerator(c)
		res := limiter.Check(c.Context(), identity, class, max, window)

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))

		if !res.Allowed {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", strconv.Itoa(retryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":         "rate_limit_exceeded",
				"message":       "too many requests, slow down",
				"limit":         res.Limit,
				"current_usage": res.CurrentUsage,
				"retry_after":   retryAfter,
				"reset_at":      res.ResetAt.UTC().Format(time.RFC3339),
			})
		}

		return c.Next()
	}
}
