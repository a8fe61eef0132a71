package resource

import (
	"log/slog"

	"github.com/pulsar-labs/pulse/internal/cache"
	"github.com/pulsar-labs/pulse/internal/domain"
)

type mediaAdapter struct{}

func (mediaAdapter) Kind() string        { return "media" }
func (mediaAdapter) EventPrefix() string { return "media" }
func (mediaAdapter) Table() string       { return "media" }

func (mediaAdapter) Columns() []string {
	return []string{
		"id", "user_id", "filename", "content_type", "size_bytes",
		"status", "storage_path", "thumbnail_path", "created_at", "updated_at",
	}
}

func (mediaAdapter) ValidateInput(in *domain.MediaInput) error {
	return in.Validate()
}

func (mediaAdapter) ValidateUpdate(up *domain.MediaUpdate) error {
	return up.Validate()
}

func (mediaAdapter) InsertColumns(in *domain.MediaInput) ([]string, []any) {
	return []string{"user_id", "filename", "content_type", "size_bytes", "status", "storage_path"},
		[]any{in.UserID, in.Filename, in.ContentType, in.SizeBytes, domain.MediaStatusPending, in.StoragePath}
}

func (mediaAdapter) UpdateColumns(up *domain.MediaUpdate) ([]string, []any) {
	var cols []string
	var vals []any
	if up.Status != nil {
		cols = append(cols, "status")
		vals = append(vals, *up.Status)
	}
	if up.StoragePath != nil {
		cols = append(cols, "storage_path")
		vals = append(vals, *up.StoragePath)
	}
	if up.ThumbnailPath != nil {
		cols = append(cols, "thumbnail_path")
		vals = append(vals, *up.ThumbnailPath)
	}
	return cols, vals
}

func (mediaAdapter) Scan(rs RowScanner) (*domain.Media, error) {
	var m domain.Media
	err := rs.Scan(
		&m.ID, &m.UserID, &m.Filename, &m.ContentType, &m.SizeBytes,
		&m.Status, &m.StoragePath, &m.ThumbnailPath, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (mediaAdapter) Project(m *domain.Media) *domain.MediaOutput {
	return &domain.MediaOutput{
		ID:            m.ID,
		UserID:        m.UserID,
		Filename:      m.Filename,
		ContentType:   m.ContentType,
		SizeBytes:     m.SizeBytes,
		Status:        m.Status,
		ThumbnailPath: m.ThumbnailPath,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func (mediaAdapter) ID(m *domain.Media) int64 { return m.ID }

// MediaService wraps the engine for the media kind.
type MediaService struct {
	*Engine[domain.Media, domain.MediaInput, domain.MediaUpdate, domain.MediaOutput]
	db PgxPool
}

func NewMediaService(db PgxPool, channel Broadcaster, events EventEmitter, c *cache.Cache, logger *slog.Logger) *MediaService {
	return &MediaService{
		Engine: NewEngine[domain.Media, domain.MediaInput, domain.MediaUpdate, domain.MediaOutput](
			mediaAdapter{}, db, channel, events, c, logger,
		),
		db: db,
	}
}
