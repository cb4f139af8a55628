package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/menta2k/idphoto/pkg/pipeline"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/validation"
)

type photoResponse struct {
	*pipeline.Result
	Photo        string `json:"photo"`
	Preview      string `json:"preview"`
	SheetPreview string `json:"sheet_preview"`
}

type failureResponse struct {
	RunID    string          `json:"run_id"`
	Error    *pipeline.Error `json:"error"`
	Warnings []string        `json:"warnings"`
	DPI      int             `json:"dpi,omitempty"`
}

func (h *Handler) RegisterPhotoRoutes(r fiber.Router) {
	r.Post("/photos", h.createPhoto)
}

// createPhoto runs the full pipeline on a multipart upload. The output query
// parameter selects JSON (default), the photo raster or the full sheet.
func (h *Handler) createPhoto(c *fiber.Ctx) error {
	fh, err := c.FormFile("photo")
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "photo file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "cannot read upload")
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, "cannot read upload")
	}

	req, err := h.app.Request(validation.File{Name: fh.Filename, Data: data})
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	if err := h.applyForm(c, &req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}

	output := c.Query("output", "json")
	switch output {
	case "json", "photo", "sheet":
	default:
		return errJSON(c, fiber.StatusBadRequest, "output must be json, photo or sheet")
	}

	res, err := h.app.Process(c.UserContext(), req)
	if err != nil {
		var pe *pipeline.Error
		if !errors.As(err, &pe) || res == nil {
			return errJSON(c, fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(statusFor(pe)).JSON(failureResponse{
			RunID:    res.RunID,
			Error:    pe,
			Warnings: res.Warnings,
			DPI:      pe.DPI,
		})
	}

	format := h.app.Config.Output.DefaultFormat
	quality := h.app.Config.Output.Quality
	switch output {
	case "photo":
		return sendImage(c, res.Photo, format, quality)
	case "sheet":
		return sendImage(c, res.Sheet, format, quality)
	}

	resp := photoResponse{Result: res}
	for dst, img := range map[*string]image.Image{
		&resp.Photo:        res.Photo,
		&resp.Preview:      res.Preview,
		&resp.SheetPreview: res.SheetPreview,
	} {
		if *dst, err = dataURL(img, format, quality); err != nil {
			return errJSON(c, fiber.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(resp)
}

// applyForm overrides configured defaults with submitted form fields
func (h *Handler) applyForm(c *fiber.Ctx, req *pipeline.Request) error {
	var err error
	if v := c.FormValue("size"); v != "" {
		if req.Size, err = h.sizeOr(v); err != nil {
			return err
		}
	}
	if v := c.FormValue("paper"); v != "" {
		if req.Paper, err = h.paperOr(v); err != nil {
			return err
		}
	}
	if v := c.FormValue("background"); v != "" {
		bg, err := processing.ParseColor(v)
		if err != nil {
			return err
		}
		req.Background = bg
	}

	floats := map[string]*float64{
		"margin_top":    &req.Margins.Top,
		"margin_bottom": &req.Margins.Bottom,
		"margin_left":   &req.Margins.Left,
		"margin_right":  &req.Margins.Right,
		"dpi_threshold": &req.DPIThreshold,
	}
	for key, dst := range floats {
		v := c.FormValue(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", key)
		}
		*dst = f
	}
	req.Margins = req.Margins.Clamped()
	return nil
}

func encodeImage(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := processing.Encode(&buf, img, format, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sendImage(c *fiber.Ctx, img image.Image, format string, quality int) error {
	data, err := encodeImage(img, format, quality)
	if err != nil {
		return errJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, mimeFor(format))
	return c.Send(data)
}

func dataURL(img image.Image, format string, quality int) (string, error) {
	if img == nil {
		return "", nil
	}
	data, err := encodeImage(img, format, quality)
	if err != nil {
		return "", err
	}
	return "data:" + mimeFor(format) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func mimeFor(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	}
	return "image/jpeg"
}
