// Package handlers implements the HTTP endpoints of the photo service.
package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/menta2k/idphoto/internal/app"
	"github.com/menta2k/idphoto/pkg/pipeline"
	"github.com/menta2k/idphoto/pkg/types"
)

// Handler serves requests against one configured App
type Handler struct {
	app    *app.App
	logger zerolog.Logger
}

// New creates the handlers for a
func New(a *app.App, logger zerolog.Logger) *Handler {
	return &Handler{app: a, logger: logger}
}

func errJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// sizeOr looks up a photo size by ID, falling back to the configured default
func (h *Handler) sizeOr(id string) (types.SizeSpec, error) {
	if id == "" {
		id = h.app.Config.Pipeline.DefaultSize
	}
	size, ok := types.LookupSize(id)
	if !ok {
		return types.SizeSpec{}, errors.New("unknown size " + strconv.Quote(id))
	}
	return size, nil
}

func (h *Handler) paperOr(id string) (types.PaperSpec, error) {
	if id == "" {
		id = h.app.Config.Pipeline.DefaultPaper
	}
	paper, ok := types.LookupPaper(id)
	if !ok {
		return types.PaperSpec{}, errors.New("unknown paper " + strconv.Quote(id))
	}
	return paper, nil
}

// statusFor maps a pipeline failure to an HTTP status
func statusFor(e *pipeline.Error) int {
	switch e.Kind {
	case pipeline.KindValidation:
		if e.Code == pipeline.CodeInvalidRequest {
			return fiber.StatusBadRequest
		}
		return fiber.StatusUnprocessableEntity
	case pipeline.KindFaceDetection:
		switch e.Code {
		case pipeline.CodeDetectorNotReady:
			return fiber.StatusServiceUnavailable
		case pipeline.CodeDetectorFailed:
			return fiber.StatusBadGateway
		}
		return fiber.StatusUnprocessableEntity
	case pipeline.KindResolution:
		return fiber.StatusUnprocessableEntity
	case pipeline.KindMatting:
		if e.Code == pipeline.CodeMattingNotReady {
			return fiber.StatusServiceUnavailable
		}
		return fiber.StatusBadGateway
	case pipeline.KindProcessing:
		if e.Code == pipeline.CodeCancelled {
			return fiber.StatusRequestTimeout
		}
	}
	return fiber.StatusInternalServerError
}
