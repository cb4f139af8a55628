package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/types"
)

type background struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

func (h *Handler) RegisterCatalogRoutes(r fiber.Router) {
	r.Get("/catalog", h.catalog)
}

func (h *Handler) catalog(c *fiber.Ctx) error {
	names := processing.BackgroundPresets()
	backgrounds := make([]background, 0, len(names))
	for _, name := range names {
		col, err := processing.ParseColor(name)
		if err != nil {
			continue
		}
		backgrounds = append(backgrounds, background{Name: name, Hex: processing.HexColor(col)})
	}

	pc := h.app.Config.Pipeline
	return c.JSON(fiber.Map{
		"sizes":       types.SizeSpecs(),
		"papers":      types.PaperSpecs(),
		"backgrounds": backgrounds,
		"defaults": fiber.Map{
			"size":          pc.DefaultSize,
			"paper":         pc.DefaultPaper,
			"background":    pc.Background,
			"dpi":           pc.DPI,
			"dpi_threshold": pc.DPIThreshold,
		},
	})
}
