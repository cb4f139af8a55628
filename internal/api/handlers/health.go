package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menta2k/idphoto/internal/app"
)

func (h *Handler) RegisterHealthRoutes(r fiber.Router) {
	r.Get("/health", h.health)
}

// health reports 503 until both collaborators are loaded
func (h *Handler) health(c *fiber.Ctx) error {
	ready := h.app.Pipeline.Readiness()
	status, code := "ok", fiber.StatusOK
	if !ready.Detector || !ready.Matting {
		status, code = "degraded", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"version":  app.Version,
		"detector": ready.Detector,
		"matting":  ready.Matting,
	})
}
