package handler

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/email"
	"github.com/pulsar-labs/pulse/internal/media"
	"github.com/pulsar-labs/pulse/internal/queue"
	"github.com/pulsar-labs/pulse/internal/resource"
)

// TaskHandler enqueues background work and exposes task lifecycle
// endpoints backed by the tasks mirror table.
type TaskHandler struct {
	queue  *queue.Queue
	tasks  *queue.TaskRepository
	media  *resource.MediaService
	logger *slog.Logger
}

func NewTaskHandler(q *queue.Queue, tasks *queue.TaskRepository, mediaSvc *resource.MediaService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		queue:  q,
		tasks:  tasks,
		media:  mediaSvc,
		logger: logger.With("component", "task_handler"),
	}
}

func (h *TaskHandler) Register(r fiber.Router) {
	r.Post("/media/process", h.ProcessMedia)
	r.Post("/email/send", h.SendEmail)
	r.Post("/email/bulk", h.SendBulkEmail)
	r.Get("/:id/status", h.Status)
	r.Delete("/:id", h.Cancel)
}

type processMediaRequest struct {
	MediaID        int64  `json:"media_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *TaskHandler) ProcessMedia(c *fiber.Ctx) error {
	var req processMediaRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if req.MediaID <= 0 {
		return domain.NewValidationError("media_id is required")
	}

	if _, err := h.media.GetByID(c.Context(), req.MediaID); err != nil {
		return err
	}

	return h.accept(c, media.JobProcessMedia,
		media.ProcessArgs{MediaID: req.MediaID},
		req.IdempotencyKey,
		map[string]interface{}{"media_id": req.MediaID},
	)
}

type sendEmailRequest struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *TaskHandler) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if strings.TrimSpace(req.To) == "" {
		return domain.NewValidationError("to is required")
	}
	if req.Subject == "" {
		return domain.NewValidationError("subject is required")
	}

	return h.accept(c, email.JobSendEmail,
		email.SendArgs{To: req.To, Subject: req.Subject, Body: req.Body},
		req.IdempotencyKey,
		map[string]interface{}{"to": req.To, "subject": req.Subject},
	)
}

type sendBulkEmailRequest struct {
	Recipients     []string `json:"recipients"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	IdempotencyKey string   `json:"idempotency_key"`
}

func (h *TaskHandler) SendBulkEmail(c *fiber.Ctx) error {
	var req sendBulkEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if len(req.Recipients) == 0 {
		return domain.NewValidationError("recipients is required")
	}
	if req.Subject == "" {
		return domain.NewValidationError("subject is required")
	}

	return h.accept(c, email.JobSendBulkEmail,
		email.BulkArgs{Recipients: req.Recipients, Subject: req.Subject, Body: req.Body},
		req.IdempotencyKey,
		map[string]interface{}{"recipients": len(req.Recipients), "subject": req.Subject},
	)
}

// accept enqueues the job and mirrors it into the tasks table. A key
// collision hands back the already-queued task, so mirror conflicts
// are expected and only logged.
func (h *TaskHandler) accept(c *fiber.Ctx, function string, args interface{}, key string, taskData map[string]interface{}) error {
	taskID, err := h.queue.Enqueue(c.Context(), function, args, queue.EnqueueOptions{Key: key})
	if err != nil {
		return err
	}

	task := &domain.Task{
		TaskID:     taskID,
		TaskType:   function,
		Status:     domain.TaskStatusPending,
		TaskData:   taskData,
		MaxRetries: queue.DefaultMaxRetries,
	}
	if err := h.tasks.Create(c.Context(), task); err != nil {
		h.logger.Debug("task already mirrored", "task_id", taskID, "error", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": taskID,
		"status":  domain.TaskStatusPending,
	})
}

func (h *TaskHandler) Status(c *fiber.Ctx) error {
	task, err := h.tasks.GetByTaskID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(task)
}

func (h *TaskHandler) Cancel(c *fiber.Ctx) error {
	taskID := c.Params("id")

	if err := h.queue.Cancel(c.Context(), taskID); err != nil {
		return err
	}
	if err := h.tasks.MarkCancelled(c.Context(), taskID); err != nil {
		h.logger.Warn("task mirror cancel failed", "task_id", taskID, "error", err)
	}

	return c.JSON(fiber.Map{
		"task_id": taskID,
		"status":  domain.TaskStatusCancelled,
	})
}
