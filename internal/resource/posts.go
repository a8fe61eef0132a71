package resource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pulsar-labs/pulse/internal/cache"
	"github.com/pulsar-labs/pulse/internal/domain"
)

type postAdapter struct{}

func (postAdapter) Kind() string        { return "posts" }
func (postAdapter) EventPrefix() string { return "entity" }
func (postAdapter) Table() string       { return "posts" }

func (postAdapter) Columns() []string {
	return []string{
		"id", "user_id", "title", "body", "published", "created_at", "updated_at",
	}
}

func (postAdapter) ValidateInput(in *domain.PostInput) error {
	return in.Validate()
}

func (postAdapter) ValidateUpdate(up *domain.PostUpdate) error {
	return up.Validate()
}

func (postAdapter) InsertColumns(in *domain.PostInput) ([]string, []any) {
	return []string{"user_id", "title", "body", "published"},
		[]any{in.UserID, in.Title, in.Body, in.Published}
}

func (postAdapter) UpdateColumns(up *domain.PostUpdate) ([]string, []any) {
	var cols []string
	var vals []any
	if up.Title != nil {
		cols = append(cols, "title")
		vals = append(vals, *up.Title)
	}
	if up.Body != nil {
		cols = append(cols, "body")
		vals = append(vals, *up.Body)
	}
	if up.Published != nil {
		cols = append(cols, "published")
		vals = append(vals, *up.Published)
	}
	return cols, vals
}

func (postAdapter) Scan(rs RowScanner) (*domain.Post, error) {
	var p domain.Post
	err := rs.Scan(
		&p.ID, &p.UserID, &p.Title, &p.Body, &p.Published,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (postAdapter) Project(p *domain.Post) *domain.PostOutput {
	return &domain.PostOutput{
		ID:        p.ID,
		UserID:    p.UserID,
		Title:     p.Title,
		Body:      p.Body,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (postAdapter) ID(p *domain.Post) int64 { return p.ID }

// PostService wraps the engine with post-specific lookups.
type PostService struct {
	*Engine[domain.Post, domain.PostInput, domain.PostUpdate, domain.PostOutput]
	db PgxPool
}

func NewPostService(db PgxPool, channel Broadcaster, events EventEmitter, c *cache.Cache, logger *slog.Logger) *PostService {
	return &PostService{
		Engine: NewEngine[domain.Post, domain.PostInput, domain.PostUpdate, domain.PostOutput](
			postAdapter{}, db, channel, events, c, logger,
		),
		db: db,
	}
}

func (s *PostService) GetByUser(ctx context.Context, userID int64, skip, limit int) ([]*domain.Post, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, title, body, published, created_at, updated_at
		FROM posts
		WHERE user_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, userID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list posts by user: %w", err)
	}
	defer rows.Close()

	var posts []*domain.Post
	for rows.Next() {
		p, err := postAdapter{}.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
