package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menta2k/idphoto/pkg/layout"
	"github.com/menta2k/idphoto/pkg/types"
)

func (h *Handler) RegisterLayoutRoutes(r fiber.Router) {
	r.Get("/layout", h.planLayout)
}

// planLayout previews the sheet arrangement without an image
func (h *Handler) planLayout(c *fiber.Ctx) error {
	size, err := h.sizeOr(c.Query("size"))
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	paper, err := h.paperOr(c.Query("paper"))
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	dpi := c.QueryFloat("dpi", h.app.Config.Pipeline.DPI)
	if dpi <= 0 {
		return errJSON(c, fiber.StatusBadRequest, "dpi must be positive")
	}
	margins := types.Margins{
		Top:    c.QueryFloat("top"),
		Bottom: c.QueryFloat("bottom"),
		Left:   c.QueryFloat("left"),
		Right:  c.QueryFloat("right"),
	}.Clamped()

	plan := layout.Compute(paper, size, dpi, margins)
	return c.JSON(fiber.Map{
		"size":    size,
		"paper":   paper,
		"margins": margins,
		"dpi":     dpi,
		"plan":    plan,
	})
}
