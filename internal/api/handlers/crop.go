package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/menta2k/idphoto/pkg/cropper"
	"github.com/menta2k/idphoto/pkg/resolution"
	"github.com/menta2k/idphoto/pkg/types"
)

type cropRequest struct {
	Size         string           `json:"size"`
	ImageWidth   int              `json:"image_width"`
	ImageHeight  int              `json:"image_height"`
	Face         *types.Rectangle `json:"face"`
	DPIThreshold float64          `json:"dpi_threshold"`
}

type cropEvent struct {
	Type   string           `json:"type"`
	DX     float64          `json:"dx"`
	DY     float64          `json:"dy"`
	Handle string           `json:"handle"`
	Size   string           `json:"size"`
	Rect   *types.Rectangle `json:"rect"`
	Face   *types.Rectangle `json:"face"`
}

type adjustRequest struct {
	Size         string        `json:"size"`
	State        cropper.State `json:"state"`
	Event        cropEvent     `json:"event"`
	DPIThreshold float64       `json:"dpi_threshold"`
}

type cropResponse struct {
	Size       types.SizeSpec         `json:"size"`
	State      cropper.State          `json:"state"`
	Resolution resolution.Measurement `json:"resolution"`
	DPI        int                    `json:"dpi"`
	Sufficient bool                   `json:"sufficient"`
}

var corners = map[string]cropper.Corner{
	"top-left":     cropper.TopLeft,
	"top-right":    cropper.TopRight,
	"bottom-left":  cropper.BottomLeft,
	"bottom-right": cropper.BottomRight,
}

func (h *Handler) RegisterCropRoutes(r fiber.Router) {
	r.Post("/crop", h.suggestCrop)
	r.Post("/crop/adjust", h.adjustCrop)
}

// suggestCrop returns the face-anchored crop for an image of the given size.
// The DPI verdict is advisory; only a pipeline run rejects low resolution.
func (h *Handler) suggestCrop(c *fiber.Ctx) error {
	var req cropRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	size, err := h.sizeOr(req.Size)
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if req.ImageWidth <= 0 || req.ImageHeight <= 0 {
		return errJSON(c, fiber.StatusBadRequest, "image_width and image_height must be positive")
	}

	var face *types.FaceBox
	if req.Face != nil && !req.Face.Empty() {
		face = &types.FaceBox{Rectangle: *req.Face}
	}
	rect := h.app.Pipeline.Calculator().FaceAnchored(face, size.AspectRatio(), req.ImageWidth, req.ImageHeight)
	state := cropper.State{Rect: rect, Ratio: size.AspectRatio(), ImageWidth: req.ImageWidth, ImageHeight: req.ImageHeight}
	return c.JSON(h.measure(size, state, req.DPIThreshold))
}

// adjustCrop applies one interactive event to a crop state
func (h *Handler) adjustCrop(c *fiber.Ctx) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	size, err := h.sizeOr(req.Size)
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err.Error())
	}
	if req.State.ImageWidth <= 0 || req.State.ImageHeight <= 0 {
		return errJSON(c, fiber.StatusBadRequest, "state image dimensions must be positive")
	}
	if req.State.Ratio <= 0 {
		req.State.Ratio = size.AspectRatio()
	}

	var ev cropper.Event
	switch req.Event.Type {
	case "drag":
		ev = cropper.Drag{DX: req.Event.DX, DY: req.Event.DY}
	case "resize":
		corner, ok := corners[req.Event.Handle]
		if !ok {
			return errJSON(c, fiber.StatusBadRequest, "unknown handle "+req.Event.Handle)
		}
		ev = cropper.ResizeCorner{Handle: corner, DX: req.Event.DX}
	case "size":
		next, err := h.sizeOr(req.Event.Size)
		if err != nil {
			return errJSON(c, fiber.StatusBadRequest, err.Error())
		}
		size = next
		ev = cropper.SizeSpecChanged{Ratio: size.AspectRatio()}
	case "reset":
		switch {
		case req.Event.Rect != nil:
			ev = cropper.ExternalReset{Rect: *req.Event.Rect}
		case req.Event.Face != nil:
			face := &types.FaceBox{Rectangle: *req.Event.Face}
			rect := h.app.Pipeline.Calculator().FaceAnchored(face, req.State.Ratio, req.State.ImageWidth, req.State.ImageHeight)
			ev = cropper.ExternalReset{Rect: rect}
		default:
			return errJSON(c, fiber.StatusBadRequest, "reset needs a rect or a face")
		}
	default:
		return errJSON(c, fiber.StatusBadRequest, "unknown event type "+req.Event.Type)
	}

	next := cropper.Reduce(req.State, ev)
	return c.JSON(h.measure(size, next, req.DPIThreshold))
}

func (h *Handler) measure(size types.SizeSpec, state cropper.State, threshold float64) cropResponse {
	if threshold <= 0 {
		threshold = h.app.Config.Pipeline.DPIThreshold
	}
	m := resolution.ForSize(state.Rect, size)
	return cropResponse{
		Size:       size,
		State:      state,
		Resolution: m,
		DPI:        m.Rounded(),
		Sufficient: m.Sufficient(threshold),
	}
}
