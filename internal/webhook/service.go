package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pulsar-labs/pulse/internal/domain"
)

const maxResponseBody = 10 * 1024

// Sender performs the HTTP leg of a webhook delivery.
type Sender struct {
	client *http.Client
	source string
}

func NewSender(source string) *Sender {
	return &Sender{
		client: &http.Client{
			// Per-request timeouts come from the subscription.
			Timeout: 0,
		},
		source: source,
	}
}

// Send posts payload to the subscription URL, signing the exact bytes
// sent. The response body is truncated for storage.
func (s *Sender) Send(ctx context.Context, sub *domain.WebhookSubscription, eventType, deliveryID string, payload []byte) SendResult {
	timeout := sub.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultWebhookTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, sub.URL, bytes.NewReader(payload))
	if err != nil {
		return SendResult{Err: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Pulse-Webhook/"+payloadVersion)
	req.Header.Set("X-Webhook-Signature", Sign(sub.Secret, payload))
	req.Header.Set("X-Webhook-Event", eventType)
	req.Header.Set("X-Webhook-Delivery", deliveryID)
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{Err: err, Duration: time.Since(start)}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	return SendResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: string(body),
		Duration:     time.Since(start),
	}
}

// Test delivers a one-shot test.ping to url without touching any
// subscription or durable record.
func (s *Sender) Test(ctx context.Context, url, secret string, headers map[string]string, timeout time.Duration) *TestResult {
	if timeout <= 0 {
		timeout = domain.DefaultWebhookTimeout
	}

	payload, err := CanonicalJSON(NewPayload(EventTestPing, s.source, map[string]interface{}{
		"message": "test webhook delivery",
	}))
	if err != nil {
		return &TestResult{ErrorMessage: err.Error()}
	}

	sub := &domain.WebhookSubscription{
		URL:     url,
		Secret:  secret,
		Headers: headers,
		Timeout: timeout,
	}
	res := s.Send(ctx, sub, EventTestPing, "test_"+uuid.NewString()[:8], payload)

	out := &TestResult{
		Success:      res.Success(),
		StatusCode:   res.StatusCode,
		ResponseBody: res.ResponseBody,
		DurationMs:   res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.ErrorMessage = res.Err.Error()
	}
	return out
}
