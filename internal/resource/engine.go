package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulsar-labs/pulse/internal/cache"
	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/resource/filter"
)

// PgxPool is the subset of pgxpool.Pool the engine needs, satisfied by
// pgxmock in tests.
type PgxPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RowScanner abstracts pgx.Row and pgx.Rows for adapter scanning.
type RowScanner interface {
	Scan(dest ...any) error
}

// Adapter binds one entity kind to the engine: schema validation,
// column mapping and the output projection.
type Adapter[S any, I any, U any, O any] interface {
	Kind() string
	EventPrefix() string
	Table() string
	Columns() []string
	ValidateInput(in *I) error
	ValidateUpdate(up *U) error
	InsertColumns(in *I) ([]string, []any)
	UpdateColumns(up *U) ([]string, []any)
	Scan(rs RowScanner) (*S, error)
	Project(s *S) *O
	ID(s *S) int64
}

// Broadcaster is the channel handle injected at engine construction.
type Broadcaster interface {
	BroadcastCreated(data interface{})
	BroadcastUpdated(data interface{})
	BroadcastDeleted(id int64)
}

// EventEmitter receives resource events for webhook fan-out.
type EventEmitter interface {
	TriggerEvent(ctx context.Context, eventType string, data interface{}) error
}

// Page is the filter_paginated result shape.
type Page[O any] struct {
	Data    []*O  `json:"data"`
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"has_more"`
}

// Engine provides CRUD, filtering and mutation fan-out for one kind.
type Engine[S any, I any, U any, O any] struct {
	adapter Adapter[S, I, U, O]
	db      PgxPool
	channel Broadcaster
	events  EventEmitter
	cache   *cache.Cache
	builder *filter.Builder
	logger  *slog.Logger
}

func NewEngine[S any, I any, U any, O any](
	adapter Adapter[S, I, U, O],
	db PgxPool,
	channel Broadcaster,
	events EventEmitter,
	c *cache.Cache,
	logger *slog.Logger,
) *Engine[S, I, U, O] {
	return &Engine[S, I, U, O]{
		adapter: adapter,
		db:      db,
		channel: channel,
		events:  events,
		cache:   c,
		builder: filter.NewBuilder(adapter.Columns(), logger),
		logger:  logger.With("component", "resource", "kind", adapter.Kind()),
	}
}

func (e *Engine[S, I, U, O]) selectColumns() string {
	return strings.Join(e.adapter.Columns(), ", ")
}

func (e *Engine[S, I, U, O]) GetByID(ctx context.Context, id int64) (*S, error) {
	cacheKey := fmt.Sprintf("%s:id:%d", e.adapter.Kind(), id)
	if cached, err := e.cache.Get(ctx, cacheKey); err == nil {
		var s S
		if err := json.Unmarshal(cached, &s); err == nil {
			return &s, nil
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", e.selectColumns(), e.adapter.Table())

	row := e.db.QueryRow(ctx, query, id)
	s, err := e.adapter.Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s by id: %w", e.adapter.Kind(), err)
	}

	if encoded, err := json.Marshal(s); err == nil {
		e.cache.Set(ctx, cacheKey, encoded)
	}

	return s, nil
}

func (e *Engine[S, I, U, O]) GetAll(ctx context.Context, skip, limit int) ([]*S, error) {
	if limit <= 0 {
		limit = filter.DefaultLimit
	}
	if limit > filter.MaxLimit {
		return nil, domain.ErrInvalidLimit
	}
	if skip < 0 {
		return nil, domain.ErrInvalidOffset
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY id ASC LIMIT $1 OFFSET $2",
		e.selectColumns(), e.adapter.Table(),
	)

	rows, err := e.db.Query(ctx, query, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.adapter.Kind(), err)
	}
	defer rows.Close()

	return e.collect(rows)
}

func (e *Engine[S, I, U, O]) Create(ctx context.Context, in *I, broadcast bool) (*S, error) {
	if err := e.adapter.ValidateInput(in); err != nil {
		return nil, err
	}

	cols, vals := e.adapter.InsertColumns(in)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		e.adapter.Table(),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		e.selectColumns(),
	)

	row := e.db.QueryRow(ctx, query, vals...)
	s, err := e.adapter.Scan(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict.WithError(err)
		}
		return nil, fmt.Errorf("create %s: %w", e.adapter.Kind(), err)
	}

	e.invalidate(ctx)
	if broadcast {
		e.fanout(ctx, "created", s)
	}

	return s, nil
}

func (e *Engine[S, I, U, O]) Update(ctx context.Context, id int64, up *U, broadcast bool) (*S, error) {
	if err := e.adapter.ValidateUpdate(up); err != nil {
		return nil, err
	}

	cols, vals := e.adapter.UpdateColumns(up)
	if len(cols) == 0 {
		return e.GetByID(ctx, id)
	}

	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	assignments = append(assignments, "updated_at = NOW()")

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d RETURNING %s",
		e.adapter.Table(),
		strings.Join(assignments, ", "),
		len(cols)+1,
		e.selectColumns(),
	)
	vals = append(vals, id)

	row := e.db.QueryRow(ctx, query, vals...)
	s, err := e.adapter.Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrConflict.WithError(err)
		}
		return nil, fmt.Errorf("update %s: %w", e.adapter.Kind(), err)
	}

	e.invalidate(ctx)
	if broadcast {
		e.fanout(ctx, "updated", s)
	}

	return s, nil
}

func (e *Engine[S, I, U, O]) Delete(ctx context.Context, id int64, broadcast bool) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", e.adapter.Table())

	tag, err := e.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", e.adapter.Kind(), err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	e.invalidate(ctx)
	if broadcast {
		e.fanoutDeleted(ctx, id)
	}

	return true, nil
}

func (e *Engine[S, I, U, O]) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", e.adapter.Table())

	var count int64
	if err := e.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", e.adapter.Kind(), err)
	}
	return count, nil
}

func (e *Engine[S, I, U, O]) Filter(ctx context.Context, q *filter.Query) ([]*S, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	cacheKey := e.filterCacheKey("filter", q)
	if cached, err := e.cache.Get(ctx, cacheKey); err == nil {
		var out []*S
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
	}

	pb := &filter.ParamBuilder{}
	where, err := e.builder.Where(q, pb)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", e.selectColumns(), e.adapter.Table())
	if where != "" {
		query += " WHERE " + where
	}
	query += " " + e.builder.Order(q)
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(q.Limit), pb.Add(q.Offset))

	rows, err := e.db.Query(ctx, query, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", e.adapter.Kind(), err)
	}
	defer rows.Close()

	result, err := e.collect(rows)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		e.cache.Set(ctx, cacheKey, encoded)
	}

	return result, nil
}

func (e *Engine[S, I, U, O]) CountFiltered(ctx context.Context, q *filter.Query) (int64, error) {
	if err := q.Normalize(); err != nil {
		return 0, err
	}

	pb := &filter.ParamBuilder{}
	where, err := e.builder.Where(q, pb)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", e.adapter.Table())
	if where != "" {
		query += " WHERE " + where
	}

	var count int64
	if err := e.db.QueryRow(ctx, query, pb.Params()...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count filtered %s: %w", e.adapter.Kind(), err)
	}
	return count, nil
}

func (e *Engine[S, I, U, O]) FilterPaginated(ctx context.Context, q *filter.Query) (*Page[O], error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	items, err := e.Filter(ctx, q)
	if err != nil {
		return nil, err
	}

	total, err := e.CountFiltered(ctx, q)
	if err != nil {
		return nil, err
	}

	data := make([]*O, len(items))
	for i, s := range items {
		data[i] = e.adapter.Project(s)
	}

	return &Page[O]{
		Data:    data,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: int64(q.Offset+len(data)) < total,
	}, nil
}

// Project exposes the adapter's output projection.
func (e *Engine[S, I, U, O]) Project(s *S) *O {
	return e.adapter.Project(s)
}

func (e *Engine[S, I, U, O]) collect(rows pgx.Rows) ([]*S, error) {
	var result []*S
	for rows.Next() {
		s, err := e.adapter.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", e.adapter.Kind(), err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", e.adapter.Kind(), err)
	}
	return result, nil
}

// fanout forwards a successful mutation to the channel and the webhook
// dispatcher. Failures are logged, never surfaced to the caller.
func (e *Engine[S, I, U, O]) fanout(ctx context.Context, action string, s *S) {
	out := e.adapter.Project(s)

	if e.channel != nil {
		switch action {
		case "created":
			e.channel.BroadcastCreated(out)
		case "updated":
			e.channel.BroadcastUpdated(out)
		}
	}

	if e.events != nil {
		eventType := fmt.Sprintf("%s.%s", e.adapter.EventPrefix(), action)
		if err := e.events.TriggerEvent(ctx, eventType, out); err != nil {
			e.logger.Warn("event fan-out degraded",
				"subsystem", "webhook",
				"error", err,
				"channel", e.adapter.Kind(),
			)
		}
	}
}

func (e *Engine[S, I, U, O]) fanoutDeleted(ctx context.Context, id int64) {
	if e.channel != nil {
		e.channel.BroadcastDeleted(id)
	}

	if e.events != nil {
		eventType := fmt.Sprintf("%s.deleted", e.adapter.EventPrefix())
		if err := e.events.TriggerEvent(ctx, eventType, map[string]interface{}{"id": id}); err != nil {
			e.logger.Warn("event fan-out degraded",
				"subsystem", "webhook",
				"error", err,
				"channel", e.adapter.Kind(),
			)
		}
	}
}

func (e *Engine[S, I, U, O]) invalidate(ctx context.Context) {
	e.cache.DeletePattern(ctx, e.adapter.Kind()+":*")
}

func (e *Engine[S, I, U, O]) filterCacheKey(op string, q *filter.Query) string {
	encoded, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("%s:%s:unhashed", e.adapter.Kind(), op)
	}
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("%s:%s:%s", e.adapter.Kind(), op, hex.EncodeToString(sum[:8]))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate key")
}
