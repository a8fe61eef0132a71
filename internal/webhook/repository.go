package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsar-labs/pulse/internal/domain"
)

// PgxPool is the pool surface the repository needs.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const subscriptionColumns = `
	id, name, COALESCE(description, ''), url, events, secret, active, headers,
	max_retries, retry_backoff, timeout, filters, created_at, updated_at, created_by,
	total_deliveries, successful_deliveries, failed_deliveries,
	last_delivery_at, last_success_at, last_failure_at
`

// Repository persists webhook subscriptions and their delivery history.
type Repository struct {
	db PgxPool
}

func NewRepository(db PgxPool) *Repository {
	return &Repository{db: db}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

func scanSubscription(row pgx.Row) (*domain.WebhookSubscription, error) {
	var s domain.WebhookSubscription
	var retryBackoff, timeout int
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &s.URL, &s.Events, &s.Secret, &s.Active, &s.Headers,
		&s.MaxRetries, &retryBackoff, &timeout, &s.Filters, &s.CreatedAt, &s.UpdatedAt, &s.CreatedBy,
		&s.TotalDeliveries, &s.SuccessfulDeliveries, &s.FailedDeliveries,
		&s.LastDeliveryAt, &s.LastSuccessAt, &s.LastFailureAt,
	)
	if err != nil {
		return nil, err
	}
	s.RetryBackoff = time.Duration(retryBackoff) * time.Second
	s.Timeout = time.Duration(timeout) * time.Second
	return &s, nil
}

func (r *Repository) Create(ctx context.Context, in *domain.WebhookSubscriptionInput, createdBy *int64) (*domain.WebhookSubscription, error) {
	for _, ev := range in.Events {
		if !IsRegistered(ev) {
			return nil, domain.ErrUnknownEvent.WithError(fmt.Errorf("event %q", ev))
		}
	}

	secret := in.Secret
	if secret == "" {
		var err error
		secret, err = generateSecret()
		if err != nil {
			return nil, err
		}
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}
	maxRetries := domain.DefaultWebhookMaxRetries
	if in.MaxRetries != nil {
		maxRetries = *in.MaxRetries
	}
	retryBackoff := int(domain.DefaultWebhookRetryBackoff / time.Second)
	if in.RetryBackoff != nil {
		retryBackoff = *in.RetryBackoff
	}
	timeout := int(domain.DefaultWebhookTimeout / time.Second)
	if in.Timeout != nil {
		timeout = *in.Timeout
	}

	query := `
		INSERT INTO webhook_subscriptions
			(name, description, url, events, secret, active, headers,
			 max_retries, retry_backoff, timeout, filters, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + subscriptionColumns

	row := r.db.QueryRow(ctx, query,
		in.Name, in.Description, in.URL, in.Events, secret, active, in.Headers,
		maxRetries, retryBackoff, timeout, in.Filters, createdBy,
	)
	s, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("create webhook subscription: %w", err)
	}
	return s, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`

	s, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription %d: %w", id, err)
	}
	return s, nil
}

func (r *Repository) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*domain.WebhookSubscription, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY id ASC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook subscriptions: %w", err)
	}
	return subs, nil
}

// ListActiveForEvent returns active subscriptions whose event list
// contains event.
func (r *Repository) ListActiveForEvent(ctx context.Context, event string) ([]*domain.WebhookSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE active = TRUE AND events @> $1::jsonb
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, []string{event})
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for event: %w", err)
	}
	defer rows.Close()

	var subs []*domain.WebhookSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook subscriptions: %w", err)
	}
	return subs, nil
}

func (r *Repository) Update(ctx context.Context, id int64, up *domain.WebhookSubscriptionUpdate) (*domain.WebhookSubscription, error) {
	for _, ev := range up.Events {
		if !IsRegistered(ev) {
			return nil, domain.ErrUnknownEvent.WithError(fmt.Errorf("event %q", ev))
		}
	}

	var sets []string
	var vals []any
	add := func(col string, v any) {
		vals = append(vals, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(vals)))
	}

	if up.Name != nil {
		add("name", *up.Name)
	}
	if up.Description != nil {
		add("description", *up.Description)
	}
	if up.URL != nil {
		add("url", *up.URL)
	}
	if up.Events != nil {
		add("events", up.Events)
	}
	if up.Active != nil {
		add("active", *up.Active)
	}
	if up.Headers != nil {
		add("headers", up.Headers)
	}
	if up.MaxRetries != nil {
		add("max_retries", *up.MaxRetries)
	}
	if up.RetryBackoff != nil {
		add("retry_backoff", *up.RetryBackoff)
	}
	if up.Timeout != nil {
		add("timeout", *up.Timeout)
	}
	if up.Filters != nil {
		add("filters", up.Filters)
	}

	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	vals = append(vals, id)
	query := fmt.Sprintf(
		`UPDATE webhook_subscriptions SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(vals), subscriptionColumns,
	)

	s, err := scanSubscription(r.db.QueryRow(ctx, query, vals...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook subscription %d: %w", id, err)
	}
	return s, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete webhook subscription %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// RecordDelivery appends a delivery record and bumps the subscription
// counters in the same transaction.
func (r *Repository) RecordDelivery(ctx context.Context, d *domain.WebhookDelivery) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delivery record: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := `
		INSERT INTO webhook_deliveries
			(subscription_id, event_type, payload, url, headers, status_code,
			 response_body, delivered_at, duration_ms, success, error_message,
			 attempt_number, will_retry, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insert,
		d.SubscriptionID, d.EventType, d.Payload, d.URL, d.Headers, d.StatusCode,
		d.ResponseBody, d.DeliveredAt, d.DurationMs, d.Success, d.ErrorMessage,
		d.AttemptNumber, d.WillRetry, d.NextRetryAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}

	counters := `
		UPDATE webhook_subscriptions
		SET total_deliveries = total_deliveries + 1,
		    successful_deliveries = successful_deliveries + CASE WHEN $2 THEN 1 ELSE 0 END,
		    failed_deliveries = failed_deliveries + CASE WHEN $2 THEN 0 ELSE 1 END,
		    last_delivery_at = NOW(),
		    last_success_at = CASE WHEN $2 THEN NOW() ELSE last_success_at END,
		    last_failure_at = CASE WHEN $2 THEN last_failure_at ELSE NOW() END
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, counters, d.SubscriptionID, d.Success); err != nil {
		return fmt.Errorf("update subscription counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery record: %w", err)
	}
	return nil
}

// DeliveryFilters narrows ListDeliveries.
type DeliveryFilters struct {
	SubscriptionID *int64
	EventType      string
	Success        *bool
	Limit          int
}

func (r *Repository) ListDeliveries(ctx context.Context, f DeliveryFilters) ([]*domain.WebhookDelivery, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}

	var where []string
	var vals []any
	add := func(expr string, v any) {
		vals = append(vals, v)
		where = append(where, fmt.Sprintf(expr, len(vals)))
	}
	if f.SubscriptionID != nil {
		add("subscription_id = $%d", *f.SubscriptionID)
	}
	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.Success != nil {
		add("success = $%d", *f.Success)
	}

	query := `
		SELECT id, subscription_id, event_type, payload, url, headers, status_code,
		       COALESCE(response_body, ''), created_at, delivered_at, duration_ms,
		       success, COALESCE(error_message, ''), attempt_number, will_retry, next_retry_at
		FROM webhook_deliveries
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	vals = append(vals, f.Limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(vals))

	rows, err := r.db.Query(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		err := rows.Scan(
			&d.ID, &d.SubscriptionID, &d.EventType, &d.Payload, &d.URL, &d.Headers, &d.StatusCode,
			&d.ResponseBody, &d.CreatedAt, &d.DeliveredAt, &d.DurationMs,
			&d.Success, &d.ErrorMessage, &d.AttemptNumber, &d.WillRetry, &d.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return out, nil
}

func (r *Repository) Stats(ctx context.Context, id int64) (*domain.WebhookSubscriptionStats, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &domain.WebhookSubscriptionStats{
		SubscriptionID:       s.ID,
		TotalDeliveries:      s.TotalDeliveries,
		SuccessfulDeliveries: s.SuccessfulDeliveries,
		FailedDeliveries:     s.FailedDeliveries,
		LastDeliveryAt:       s.LastDeliveryAt,
		LastSuccessAt:        s.LastSuccessAt,
		LastFailureAt:        s.LastFailureAt,
	}
	if s.TotalDeliveries > 0 {
		stats.SuccessRate = float64(s.SuccessfulDeliveries) / float64(s.TotalDeliveries)
	}
	return stats, nil
}
