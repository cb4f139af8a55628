package cropper

import (
	"math"

	"github.com/menta2k/idphoto/pkg/types"
)

// MinCropWidth is the narrowest crop a corner resize can produce
const MinCropWidth = 16.0

// State is the interactive crop state of one uploaded image
type State struct {
	Rect        types.Rectangle `json:"rect"`
	Ratio       float64         `json:"ratio"`
	ImageWidth  int             `json:"image_width"`
	ImageHeight int             `json:"image_height"`
}

// Event is an input that produces a new crop rectangle
type Event interface {
	apply(s State) State
}

// Corner identifies a resize handle
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

// Drag moves the rectangle by (DX, DY), stopping at the image edges
type Drag struct {
	DX, DY float64
}

// ResizeCorner moves a corner horizontally by DX; the height follows the ratio
// and the opposite corner stays fixed
type ResizeCorner struct {
	Handle Corner
	DX     float64
}

// SizeSpecChanged switches to a new aspect ratio around the current center
type SizeSpecChanged struct {
	Ratio float64
}

// ExternalReset replaces the rectangle, for example with a fresh face-anchored crop
type ExternalReset struct {
	Rect types.Rectangle
}

// Reduce returns the state that results from applying ev to s. The input state
// is never modified.
func Reduce(s State, ev Event) State {
	if ev == nil {
		return s
	}
	return ev.apply(s)
}

func (e Drag) apply(s State) State {
	W, H := float64(s.ImageWidth), float64(s.ImageHeight)
	r := s.Rect
	r.X = clamp(r.X+e.DX, 0, math.Max(0, W-r.Width))
	r.Y = clamp(r.Y+e.DY, 0, math.Max(0, H-r.Height))
	s.Rect = r
	return s
}

func (e ResizeCorner) apply(s State) State {
	if s.Ratio <= 0 {
		return s
	}
	W, H := float64(s.ImageWidth), float64(s.ImageHeight)
	r := s.Rect
	right, bottom := r.X+r.Width, r.Y+r.Height

	// Anchor is the corner opposite the handle; growth is bounded by the
	// space left between the anchor and the image edges.
	var w, maxW float64
	switch e.Handle {
	case BottomRight:
		w = r.Width + e.DX
		maxW = math.Min(W-r.X, (H-r.Y)*s.Ratio)
	case TopRight:
		w = r.Width + e.DX
		maxW = math.Min(W-r.X, bottom*s.Ratio)
	case BottomLeft:
		w = r.Width - e.DX
		maxW = math.Min(right, (H-r.Y)*s.Ratio)
	case TopLeft:
		w = r.Width - e.DX
		maxW = math.Min(right, bottom*s.Ratio)
	default:
		return s
	}

	w = clamp(w, math.Min(MinCropWidth, maxW), maxW)
	h := w / s.Ratio

	switch e.Handle {
	case BottomRight:
		r = types.Rectangle{X: r.X, Y: r.Y, Width: w, Height: h}
	case TopRight:
		r = types.Rectangle{X: r.X, Y: bottom - h, Width: w, Height: h}
	case BottomLeft:
		r = types.Rectangle{X: right - w, Y: r.Y, Width: w, Height: h}
	case TopLeft:
		r = types.Rectangle{X: right - w, Y: bottom - h, Width: w, Height: h}
	}
	s.Rect = r
	return s
}

func (e SizeSpecChanged) apply(s State) State {
	if e.Ratio <= 0 {
		return s
	}
	cx, cy := s.Rect.Center()
	h := s.Rect.Height
	if h <= 0 {
		h = minSide
	}
	s.Ratio = e.Ratio
	s.Rect = FitAround(cx, cy, h*e.Ratio, h, s.ImageWidth, s.ImageHeight)
	return s
}

func (e ExternalReset) apply(s State) State {
	r := e.Rect
	if r.Empty() {
		return s
	}
	cx, cy := r.Center()
	s.Rect = FitAround(cx, cy, r.Width, r.Height, s.ImageWidth, s.ImageHeight)
	return s
}
