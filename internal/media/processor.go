package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/queue"
	"github.com/pulsar-labs/pulse/internal/resource"
	"github.com/pulsar-labs/pulse/internal/webhook"
)

// JobProcessMedia is the queue function name for media processing.
const JobProcessMedia = "process_media"

// ProcessArgs is the job payload for one media item.
type ProcessArgs struct {
	MediaID int64 `json:"media_id"`
}

// EventEmitter is the webhook surface the processor needs.
type EventEmitter interface {
	TriggerEvent(ctx context.Context, event string, data interface{}) error
}

// Processor runs process_media jobs: thumbnail the item, flip its
// status, and report progress over pub/sub.
type Processor struct {
	media     *resource.MediaService
	store     MediaStore
	publisher *queue.Publisher
	events    EventEmitter
	logger    *slog.Logger
}

func NewProcessor(media *resource.MediaService, store MediaStore, publisher *queue.Publisher, events EventEmitter, logger *slog.Logger) *Processor {
	return &Processor{
		media:     media,
		store:     store,
		publisher: publisher,
		events:    events,
		logger:    logger.With("component", "media_processor"),
	}
}

func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	var args ProcessArgs
	if err := json.Unmarshal(job.Args, &args); err != nil {
		return fmt.Errorf("decode media job args: %w", err)
	}

	m, err := p.media.GetByID(ctx, args.MediaID)
	if errors.Is(err, domain.ErrNotFound) {
		p.logger.Warn("skipping processing for removed media", "media_id", args.MediaID)
		return nil
	}
	if err != nil {
		return err
	}

	mediaID := strconv.FormatInt(m.ID, 10)
	p.progress(ctx, mediaID, domain.MediaStatusProcessing, 0)

	processing := domain.MediaStatusProcessing
	if _, err := p.media.Update(ctx, m.ID, &domain.MediaUpdate{Status: &processing}, true); err != nil {
		return err
	}

	thumbPath, err := p.thumbnail(ctx, m)
	if err != nil {
		p.fail(ctx, m, mediaID, err)
		return err
	}
	p.progress(ctx, mediaID, domain.MediaStatusProcessing, 50)

	ready := domain.MediaStatusReady
	updated, err := p.media.Update(ctx, m.ID, &domain.MediaUpdate{
		Status:        &ready,
		ThumbnailPath: &thumbPath,
	}, true)
	if err != nil {
		p.fail(ctx, m, mediaID, err)
		return err
	}
	p.progress(ctx, mediaID, domain.MediaStatusReady, 100)

	if err := p.events.TriggerEvent(ctx, webhook.EventMediaProcessed, map[string]interface{}{
		"id":             updated.ID,
		"user_id":        updated.UserID,
		"filename":       updated.Filename,
		"status":         updated.Status,
		"thumbnail_path": updated.ThumbnailPath,
	}); err != nil {
		p.logger.Warn("event fan-out degraded", "event", webhook.EventMediaProcessed, "error", err)
	}

	p.logger.Info("media processed", "media_id", m.ID, "thumbnail", thumbPath)
	return nil
}

// thumbnail writes the derived asset next to the original. The
// transform itself is a copy placeholder; the pathing and status
// plumbing around it are the contract.
func (p *Processor) thumbnail(ctx context.Context, m *domain.Media) (string, error) {
	src, err := p.store.Open(ctx, m.StoragePath)
	if err != nil {
		return "", fmt.Errorf("open source media: %w", err)
	}
	defer func() { _ = src.Close() }()

	thumbPath := ThumbnailPath(m.StoragePath)
	if _, err := p.store.Put(ctx, thumbPath, src); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}
	return thumbPath, nil
}

func (p *Processor) fail(ctx context.Context, m *domain.Media, mediaID string, cause error) {
	failed := domain.MediaStatusFailed
	if _, err := p.media.Update(ctx, m.ID, &domain.MediaUpdate{Status: &failed}, true); err != nil {
		p.logger.Error("failed to mark media failed", "media_id", m.ID, "error", err)
	}
	p.progress(ctx, mediaID, domain.MediaStatusFailed, 100)

	if err := p.events.TriggerEvent(ctx, webhook.EventMediaFailed, map[string]interface{}{
		"id":      m.ID,
		"user_id": m.UserID,
		"error":   cause.Error(),
	}); err != nil {
		p.logger.Warn("event fan-out degraded", "event", webhook.EventMediaFailed, "error", err)
	}
}

func (p *Processor) progress(ctx context.Context, mediaID, status string, pct int) {
	p.publisher.Progress(ctx, mediaID, "media", status, pct, nil)
}
