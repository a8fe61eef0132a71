package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/database"
)

const apiVersion = "0.1.0"

// StoreChecker reports whether the shared store is reachable.
type StoreChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	db    database.Pinger
	store StoreChecker
}

func NewHealthHandler(db database.Pinger, st StoreChecker) *HealthHandler {
	return &HealthHandler{db: db, store: st}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: apiVersion,
	})
}

// Ready checks the backends the API cannot serve without.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	components := fiber.Map{"database": "ok", "store": "ok"}
	healthy := true

	if err := database.HealthCheck(c.Context(), h.db); err != nil {
		components["database"] = err.Error()
		healthy = false
	}
	if err := h.store.HealthCheck(c.Context()); err != nil {
		components["store"] = err.Error()
		healthy = false
	}

	status := fiber.StatusOK
	state := "ready"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		state = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":     state,
		"components": components,
	})
}
