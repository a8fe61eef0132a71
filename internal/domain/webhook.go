package domain

import (
	"net/url"
	"strings"
	"time"
)

const (
	DefaultWebhookMaxRetries   = 3
	DefaultWebhookRetryBackoff = 60 * time.Second
	DefaultWebhookTimeout      = 10 * time.Second
)

type WebhookSubscription struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url"`
	Events      []string          `json:"events"`
	Secret      string            `json:"-"`
	Active      bool              `json:"active"`
	Headers     map[string]string `json:"headers,omitempty"`

	MaxRetries   int           `json:"max_retries"`
	RetryBackoff time.Duration `json:"retry_backoff"`
	Timeout      time.Duration `json:"timeout"`

	Filters map[string]interface{} `json:"filters,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy *int64     `json:"created_by,omitempty"`

	TotalDeliveries      int64      `json:"total_deliveries"`
	SuccessfulDeliveries int64      `json:"successful_deliveries"`
	FailedDeliveries     int64      `json:"failed_deliveries"`
	LastDeliveryAt       *time.Time `json:"last_delivery_at,omitempty"`
	LastSuccessAt        *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt        *time.Time `json:"last_failure_at,omitempty"`
}

type WebhookSubscriptionInput struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	URL          string                 `json:"url"`
	Events       []string               `json:"events"`
	Secret       string                 `json:"secret"`
	Active       *bool                  `json:"active"`
	Headers      map[string]string      `json:"headers"`
	MaxRetries   *int                   `json:"max_retries"`
	RetryBackoff *int                   `json:"retry_backoff"`
	Timeout      *int                   `json:"timeout"`
	Filters      map[string]interface{} `json:"filters"`
}

type WebhookSubscriptionUpdate struct {
	Name         *string                `json:"name,omitempty"`
	Description  *string                `json:"description,omitempty"`
	URL          *string                `json:"url,omitempty"`
	Events       []string               `json:"events,omitempty"`
	Active       *bool                  `json:"active,omitempty"`
	Headers      map[string]string      `json:"headers,omitempty"`
	MaxRetries   *int                   `json:"max_retries,omitempty"`
	RetryBackoff *int                   `json:"retry_backoff,omitempty"`
	Timeout      *int                   `json:"timeout,omitempty"`
	Filters      map[string]interface{} `json:"filters,omitempty"`
}

type WebhookDelivery struct {
	ID             int64                  `json:"id"`
	SubscriptionID int64                  `json:"subscription_id"`
	EventType      string                 `json:"event_type"`
	Payload        map[string]interface{} `json:"payload"`
	URL            string                 `json:"url"`
	Headers        map[string]string      `json:"headers,omitempty"`
	StatusCode     *int                   `json:"status_code,omitempty"`
	ResponseBody   string                 `json:"response_body,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	DeliveredAt    *time.Time             `json:"delivered_at,omitempty"`
	DurationMs     *int64                 `json:"duration_ms,omitempty"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	AttemptNumber  int                    `json:"attempt_number"`
	WillRetry      bool                   `json:"will_retry"`
	NextRetryAt    *time.Time             `json:"next_retry_at,omitempty"`
}

// WebhookSubscriptionStats is the aggregate counter view of a subscription.
type WebhookSubscriptionStats struct {
	SubscriptionID       int64      `json:"subscription_id"`
	TotalDeliveries      int64      `json:"total_deliveries"`
	SuccessfulDeliveries int64      `json:"successful_deliveries"`
	FailedDeliveries     int64      `json:"failed_deliveries"`
	SuccessRate          float64    `json:"success_rate"`
	LastDeliveryAt       *time.Time `json:"last_delivery_at,omitempty"`
	LastSuccessAt        *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt        *time.Time `json:"last_failure_at,omitempty"`
}

func (in *WebhookSubscriptionInput) Validate(production bool) error {
	if in.Name == "" {
		return NewValidationError("name is required")
	}
	if in.URL == "" {
		return NewValidationError("url is required")
	}
	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return NewValidationError("url must be a valid http(s) URL")
	}
	if production && u.Scheme != "https" {
		return ErrInsecureURL
	}
	if len(in.Events) == 0 {
		return NewValidationError("at least one event is required")
	}
	if in.MaxRetries != nil && *in.MaxRetries < 0 {
		return NewValidationError("max_retries cannot be negative")
	}
	if in.RetryBackoff != nil && *in.RetryBackoff < 1 {
		return NewValidationError("retry_backoff must be at least 1 second")
	}
	if in.Timeout != nil && *in.Timeout < 1 {
		return NewValidationError("timeout must be at least 1 second")
	}
	return nil
}

func (u *WebhookSubscriptionUpdate) Validate(production bool) error {
	if u.URL != nil {
		parsed, err := url.Parse(*u.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return NewValidationError("url must be a valid http(s) URL")
		}
		if production && parsed.Scheme != "https" {
			return ErrInsecureURL
		}
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return NewValidationError("name cannot be empty")
	}
	return nil
}
