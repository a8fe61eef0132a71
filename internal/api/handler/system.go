package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pulsar-labs/pulse/internal/ws"
)

// SystemHandler serves the welcome metadata and fabric stats.
type SystemHandler struct {
	appName     string
	environment string
	hub         *ws.Hub
}

func NewSystemHandler(appName, environment string, hub *ws.Hub) *SystemHandler {
	return &SystemHandler{
		appName:     appName,
		environment: environment,
		hub:         hub,
	}
}

func (h *SystemHandler) Welcome(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"app":         h.appName,
		"version":     apiVersion,
		"environment": h.environment,
		"docs":        "/swagger/index.html",
		"health":      "/health",
	})
}

func (h *SystemHandler) WSStats(c *fiber.Ctx) error {
	return c.JSON(h.hub.Stats())
}
