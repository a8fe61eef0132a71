package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsar-labs/pulse/internal/domain"
)

func TestSenderSend(t *testing.T) {
	payload := []byte(`{"data":{"id":7},"event_type":"user.created"}`)

	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(r.Context())
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer srv.Close()

	sub := &domain.WebhookSubscription{
		URL:     srv.URL,
		Secret:  "whsec_test",
		Headers: map[string]string{"X-Custom": "yes"},
		Timeout: 5 * time.Second,
	}

	sender := NewSender("pulse")
	res := sender.Send(context.Background(), sub, EventUserCreated, "dlv_1", payload)

	require.NoError(t, res.Err)
	assert.True(t, res.Success())
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, `{"received":true}`, res.ResponseBody)
	assert.Greater(t, res.Duration, time.Duration(0))

	assert.Equal(t, payload, gotBody)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, EventUserCreated, got.Header.Get("X-Webhook-Event"))
	assert.Equal(t, "dlv_1", got.Header.Get("X-Webhook-Delivery"))
	assert.Equal(t, "yes", got.Header.Get("X-Custom"))

	signature := got.Header.Get("X-Webhook-Signature")
	assert.True(t, strings.HasPrefix(signature, "sha256="))
	assert.True(t, Verify(sub.Secret, payload, signature))
}

func TestSenderSend_TruncatesLargeResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBody*2)))
	}))
	defer srv.Close()

	sender := NewSender("pulse")
	res := sender.Send(context.Background(), &domain.WebhookSubscription{
		URL: srv.URL, Secret: "s", Timeout: 5 * time.Second,
	}, EventTestPing, "dlv_2", []byte(`{}`))

	require.NoError(t, res.Err)
	assert.Len(t, res.ResponseBody, maxResponseBody)
}

func TestSenderSend_ConnectionError(t *testing.T) {
	sender := NewSender("pulse")
	res := sender.Send(context.Background(), &domain.WebhookSubscription{
		URL: "http://127.0.0.1:1", Secret: "s", Timeout: time.Second,
	}, EventTestPing, "dlv_3", []byte(`{}`))

	assert.Error(t, res.Err)
	assert.False(t, res.Success())
	assert.False(t, res.Permanent())
}

func TestSendResultClassification(t *testing.T) {
	tests := []struct {
		status    int
		success   bool
		permanent bool
	}{
		{200, true, false},
		{204, true, false},
		{301, false, false},
		{400, false, true},
		{404, false, true},
		{429, false, true},
		{500, false, false},
		{503, false, false},
	}

	for _, tt := range tests {
		res := SendResult{StatusCode: tt.status}
		assert.Equal(t, tt.success, res.Success(), "status %d success", tt.status)
		assert.Equal(t, tt.permanent, res.Permanent(), "status %d permanent", tt.status)
	}
}

func TestSenderTest(t *testing.T) {
	t.Run("delivers a signed test ping", func(t *testing.T) {
		var gotEvent, gotSig string
		var gotBody []byte
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotEvent = r.Header.Get("X-Webhook-Event")
			gotSig = r.Header.Get("X-Webhook-Signature")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sender := NewSender("pulse")
		res := sender.Test(context.Background(), srv.URL, "whsec_test", nil, 5*time.Second)

		assert.True(t, res.Success)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Empty(t, res.ErrorMessage)
		assert.Equal(t, EventTestPing, gotEvent)
		assert.True(t, Verify("whsec_test", gotBody, gotSig))
	})

	t.Run("reports unreachable targets", func(t *testing.T) {
		sender := NewSender("pulse")
		res := sender.Test(context.Background(), "http://127.0.0.1:1", "s", nil, time.Second)

		assert.False(t, res.Success)
		assert.NotEmpty(t, res.ErrorMessage)
	})
}
