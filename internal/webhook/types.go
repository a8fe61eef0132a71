package webhook

import (
	"encoding/json"
	"time"
)

// DeliveryArgs is the job payload for one delivery attempt. The
// canonical payload bytes ride along so retries resend exactly what
// the first attempt signed.
type DeliveryArgs struct {
	SubscriptionID int64           `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Attempt        int             `json:"attempt"`
}

// SendResult captures the outcome of a single HTTP delivery.
type SendResult struct {
	StatusCode   int
	ResponseBody string
	Duration     time.Duration
	Err          error
}

// Success reports a 2xx response.
func (r SendResult) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Permanent reports a response that retrying will not fix.
func (r SendResult) Permanent() bool {
	return r.Err == nil && r.StatusCode >= 400 && r.StatusCode < 500
}

// TestResult is the synchronous outcome of a test delivery.
type TestResult struct {
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}
