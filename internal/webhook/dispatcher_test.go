package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/queue"
)

type fakeEnqueuer struct {
	calls []fakeEnqueueCall
	err   error
}

type fakeEnqueueCall struct {
	function string
	args     DeliveryArgs
	opts     queue.EnqueueOptions
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, function string, args interface{}, opts queue.EnqueueOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, fakeEnqueueCall{function: function, args: args.(DeliveryArgs), opts: opts})
	return "job-1", nil
}

var subscriptionTestColumns = []string{
	"id", "name", "description", "url", "events", "secret", "active", "headers",
	"max_retries", "retry_backoff", "timeout", "filters", "created_at", "updated_at", "created_by",
	"total_deliveries", "successful_deliveries", "failed_deliveries",
	"last_delivery_at", "last_success_at", "last_failure_at",
}

func subscriptionRow(rows *pgxmock.Rows, id int64, filters map[string]interface{}) *pgxmock.Rows {
	now := time.Now().UTC()
	return rows.AddRow(
		id, "sub", "", "https://hooks.example.com/in", []string{EventUserCreated}, "whsec_x", true,
		map[string]string(nil), 3, 60, 10, filters, now, now, (*int64)(nil),
		int64(0), int64(0), int64(0),
		(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil),
	)
}

func TestTriggerEvent_RejectsUnknownEvent(t *testing.T) {
	d := NewDispatcher(nil, &fakeEnqueuer{}, "pulse", slog.Default())

	err := d.TriggerEvent(context.Background(), "user.renamed", map[string]interface{}{})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, domain.ErrUnknownEvent.Code, appErr.Code)
}

func TestTriggerEvent_NoSubscribersIsANoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhook_subscriptions").
		WithArgs([]string{EventUserCreated}).
		WillReturnRows(pgxmock.NewRows(subscriptionTestColumns))

	enq := &fakeEnqueuer{}
	d := NewDispatcher(NewRepository(mock), enq, "pulse", slog.Default())

	require.NoError(t, d.TriggerEvent(context.Background(), EventUserCreated, map[string]interface{}{"id": 1}))
	assert.Empty(t, enq.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerEvent_EnqueuesOneJobPerMatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(subscriptionTestColumns)
	subscriptionRow(rows, 1, nil)
	subscriptionRow(rows, 2, map[string]interface{}{"role": "admin"})

	mock.ExpectQuery("SELECT (.+) FROM webhook_subscriptions").
		WithArgs([]string{EventUserCreated}).
		WillReturnRows(rows)

	enq := &fakeEnqueuer{}
	d := NewDispatcher(NewRepository(mock), enq, "pulse", slog.Default())

	data := map[string]interface{}{"id": 7, "role": "user"}
	require.NoError(t, d.TriggerEvent(context.Background(), EventUserCreated, data))

	// Subscription 2 filters on role=admin and must be skipped.
	require.Len(t, enq.calls, 1)
	call := enq.calls[0]
	assert.Equal(t, JobDeliverWebhook, call.function)
	assert.Equal(t, int64(1), call.args.SubscriptionID)
	assert.Equal(t, EventUserCreated, call.args.EventType)
	assert.Equal(t, 1, call.args.Attempt)
	assert.Equal(t, 3, call.opts.MaxRetries)

	var payload Payload
	require.NoError(t, json.Unmarshal(call.args.Payload, &payload))
	assert.Equal(t, EventUserCreated, payload.EventType)
	assert.Equal(t, "pulse", payload.Source)
	assert.NotEmpty(t, payload.EventID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchesFilters(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]interface{}
		data    map[string]interface{}
		want    bool
	}{
		{
			name: "no filters matches everything",
			data: map[string]interface{}{"a": 1},
			want: true,
		},
		{
			name:    "equal value matches",
			filters: map[string]interface{}{"role": "admin"},
			data:    map[string]interface{}{"role": "admin", "id": float64(1)},
			want:    true,
		},
		{
			name:    "different value rejects",
			filters: map[string]interface{}{"role": "admin"},
			data:    map[string]interface{}{"role": "user"},
			want:    false,
		},
		{
			name:    "missing key rejects",
			filters: map[string]interface{}{"role": "admin"},
			data:    map[string]interface{}{"id": float64(1)},
			want:    false,
		},
		{
			name:    "all filters must match",
			filters: map[string]interface{}{"role": "admin", "active": true},
			data:    map[string]interface{}{"role": "admin", "active": false},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesFilters(tt.filters, tt.data))
		})
	}
}

func TestDataFields(t *testing.T) {
	payload, err := CanonicalJSON(NewPayload(EventUserCreated, "pulse", map[string]interface{}{
		"id":   7,
		"role": "admin",
	}))
	require.NoError(t, err)

	fields := dataFields(payload)
	assert.Equal(t, float64(7), fields["id"])
	assert.Equal(t, "admin", fields["role"])
}

func TestDataFields_NonObjectData(t *testing.T) {
	assert.Nil(t, dataFields([]byte(`{"data":"just a string"}`)))
	assert.Nil(t, dataFields([]byte(`not json`)))
}
