package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/domain"
	"github.com/pulsar-labs/pulse/internal/webhook"
)

// WebhookHandler manages subscriptions, delivery history and the
// one-shot test endpoint.
type WebhookHandler struct {
	repo       *webhook.Repository
	sender     *webhook.Sender
	production bool
	logger     *slog.Logger
}

func NewWebhookHandler(repo *webhook.Repository, sender *webhook.Sender, production bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		repo:       repo,
		sender:     sender,
		production: production,
		logger:     logger.With("component", "webhook_handler"),
	}
}

func (h *WebhookHandler) Register(r fiber.Router) {
	r.Get("/events", h.Events)
	r.Post("/subscriptions", h.Create)
	r.Get("/subscriptions", h.List)
	r.Get("/subscriptions/:id", h.Get)
	r.Patch("/subscriptions/:id", h.Update)
	r.Delete("/subscriptions/:id", h.Delete)
	r.Get("/subscriptions/:id/stats", h.Stats)
	r.Get("/deliveries", h.Deliveries)
	r.Post("/test", h.Test)
}

func (h *WebhookHandler) Events(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"events": webhook.Events()})
}

// createResponse carries the secret exactly once, on creation.
type createResponse struct {
	*domain.WebhookSubscription
	Secret string `json:"secret"`
}

func (h *WebhookHandler) Create(c *fiber.Ctx) error {
	var in domain.WebhookSubscriptionInput
	if err := c.BodyParser(&in); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if err := in.Validate(h.production); err != nil {
		return err
	}

	sub, err := h.repo.Create(c.Context(), &in, nil)
	if err != nil {
		return err
	}

	h.logger.Info("webhook subscription created", "subscription_id", sub.ID, "events", sub.Events)
	return c.Status(fiber.StatusCreated).JSON(createResponse{
		WebhookSubscription: sub,
		Secret:              sub.Secret,
	})
}

func (h *WebhookHandler) List(c *fiber.Ctx) error {
	activeOnly := c.QueryBool("active_only", false)
	limit := c.QueryInt("limit", 100)
	offset := c.QueryInt("offset", 0)

	subs, err := h.repo.List(c.Context(), activeOnly, limit, offset)
	if err != nil {
		return err
	}
	if subs == nil {
		subs = []*domain.WebhookSubscription{}
	}
	return c.JSON(subs)
}

func (h *WebhookHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	sub, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (h *WebhookHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var up domain.WebhookSubscriptionUpdate
	if err := c.BodyParser(&up); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if err := up.Validate(h.production); err != nil {
		return err
	}

	sub, err := h.repo.Update(c.Context(), id, &up)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (h *WebhookHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) Stats(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	stats, err := h.repo.Stats(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *WebhookHandler) Deliveries(c *fiber.Ctx) error {
	filters := webhook.DeliveryFilters{
		EventType: c.Query("event_type"),
		Limit:     c.QueryInt("limit", 100),
	}

	if raw := c.Query("subscription_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.NewValidationError("subscription_id must be an integer")
		}
		filters.SubscriptionID = &id
	}
	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.NewValidationError("success must be a boolean")
		}
		filters.Success = &success
	}

	deliveries, err := h.repo.ListDeliveries(c.Context(), filters)
	if err != nil {
		return err
	}
	if deliveries == nil {
		deliveries = []*domain.WebhookDelivery{}
	}
	return c.JSON(deliveries)
}

type testRequest struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Headers map[string]string `json:"headers"`
	Timeout int               `json:"timeout"`
}

func (h *WebhookHandler) Test(c *fiber.Ctx) error {
	var req testRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	if req.URL == "" {
		return domain.NewValidationError("url is required")
	}

	timeout := time.Duration(req.Timeout) * time.Second
	result := h.sender.Test(c.Context(), req.URL, req.Secret, req.Headers, timeout)
	return c.JSON(result)
}
