package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	AppName     string `envconfig:"APP_NAME" default:"pulse"`
	Port        int    `envconfig:"PORT" default:"8000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Shared store
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`

	// Cache
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"300s"`

	// Security
	SecretKey string `envconfig:"SECRET_KEY" required:"true"`

	// Media storage
	UseS3         bool   `envconfig:"USE_S3" default:"false"`
	S3EndpointURL string `envconfig:"S3_ENDPOINT_URL" default:""`
	S3AccessKey   string `envconfig:"S3_ACCESS_KEY" default:""`
	S3SecretKey   string `envconfig:"S3_SECRET_KEY" default:""`
	S3BucketName  string `envconfig:"S3_BUCKET_NAME" default:"media"`
	S3Region      string `envconfig:"S3_REGION" default:"us-east-1"`
	MediaFolder   string `envconfig:"MEDIA_FOLDER" default:"./media"`
	MaxFileSize   int64  `envconfig:"MAX_FILE_SIZE" default:"10485760"`

	// SMTP
	SMTPHost      string `envconfig:"SMTP_HOST" default:""`
	SMTPPort      int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser      string `envconfig:"SMTP_USER" default:""`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFromEmail string `envconfig:"SMTP_FROM_EMAIL" default:""`
	SMTPFromName  string `envconfig:"SMTP_FROM_NAME" default:"pulse"`
	SMTPUseTLS    bool   `envconfig:"SMTP_USE_TLS" default:"true"`

	// CORS
	CORSOrigins     string `envconfig:"CORS_ORIGINS" default:"*"`
	CORSCredentials bool   `envconfig:"CORS_CREDENTIALS" default:"true"`
	CORSMethods     string `envconfig:"CORS_METHODS" default:"GET,POST,PATCH,PUT,DELETE,OPTIONS"`
	CORSHeaders     string `envconfig:"CORS_HEADERS" default:"Origin,Content-Type,Accept,Authorization"`

	// Rate limiting
	RateLimitDefault int           `envconfig:"RATE_LIMIT_DEFAULT" default:"100"`
	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`

	// Queue
	QueueConcurrency int           `envconfig:"QUEUE_CONCURRENCY" default:"0"`
	QueueLease       time.Duration `envconfig:"QUEUE_LEASE_SECONDS" default:"30s"`
	QueueMaxBackoff  time.Duration `envconfig:"QUEUE_MAX_BACKOFF" default:"1h"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:""`
	LogFile   string `envconfig:"LOG_FILE" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// RedisAddr returns the host:port pair for the shared store.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// CORSOriginsList splits the comma-separated origins setting.
func (c *Config) CORSOriginsList() []string {
	if c.CORSOrigins == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
