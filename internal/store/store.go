package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings for the shared store.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store wraps the Redis client shared by the queue, the rate limiter,
// the cache and the pub/sub relay.
type Store struct {
	client *redis.Client
}

func New(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &Store{client: client}, nil
}

// Client exposes the underlying Redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) Close() error {
	return s.client.Close()
}

// HealthCheck verifies store connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store unhealthy: %w", err)
	}
	return nil
}

// Publish sends a JSON payload on a pub/sub topic.
func (s *Store) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := s.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PSubscribe subscribes to a topic pattern.
func (s *Store) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return s.client.PSubscribe(ctx, pattern)
}
