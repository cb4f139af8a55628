package cropper

import (
	"math"

	"github.com/menta2k/idphoto/pkg/types"
)

// Padding controls how far the crop extends around a face, as multiples of the
// face box dimensions
type Padding struct {
	Side   float64 `json:"side"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// DefaultPadding frames hair above the face and shoulders below it
var DefaultPadding = Padding{Side: 0.8, Top: 1.5, Bottom: 1.0}

// DefaultFallbackWidthRatio is the share of the image width used when no face is known
const DefaultFallbackWidthRatio = 0.4

// minSide is the smallest crop edge returned for degenerate inputs
const minSide = 1.0

// Calculator computes face-anchored crop rectangles
type Calculator struct {
	config CropConfig
}

// CropConfig holds configuration for face-anchored cropping
type CropConfig struct {
	Padding            Padding
	FallbackWidthRatio float64
}

// New creates a Calculator with the default padding
func New() *Calculator {
	return &Calculator{
		config: CropConfig{
			Padding:            DefaultPadding,
			FallbackWidthRatio: DefaultFallbackWidthRatio,
		},
	}
}

// NewWithConfig creates a Calculator with custom padding
func NewWithConfig(config CropConfig) *Calculator {
	if config.FallbackWidthRatio <= 0 || config.FallbackWidthRatio > 1 {
		config.FallbackWidthRatio = DefaultFallbackWidthRatio
	}
	return &Calculator{config: config}
}

// Config returns the calculator configuration
func (c *Calculator) Config() CropConfig {
	return c.config
}

// FaceAnchored returns a rectangle of aspect ratio ratio centered on the face
// and contained in the imgW x imgH image. A nil face centers on the image.
func (c *Calculator) FaceAnchored(face *types.FaceBox, ratio float64, imgW, imgH int) types.Rectangle {
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		ratio = 1
	}
	W, H := float64(imgW), float64(imgH)
	if W <= 0 || H <= 0 {
		return types.Rectangle{Width: minSide * math.Max(1, ratio), Height: minSide * math.Max(1, 1/ratio)}
	}

	var cx, cy, w, h float64
	if face == nil {
		cx, cy = W/2, H/2
		w = W * c.config.FallbackWidthRatio
		h = w / ratio
	} else {
		fx, fy := face.Center()
		cx = clamp(fx, 0, W)
		cy = clamp(fy, 0, H)
		p := c.config.Padding
		w = face.Width * (1 + 2*p.Side)
		h = face.Height * (1 + p.Top + p.Bottom)
		w, h = matchRatio(w, h, ratio)
	}

	return FitAround(cx, cy, w, h, imgW, imgH)
}

// FitAround centers a w x h rectangle on (cx, cy), shrinking it uniformly
// until it lies inside the image. The aspect ratio of w/h is preserved.
func FitAround(cx, cy, w, h float64, imgW, imgH int) types.Rectangle {
	W, H := float64(imgW), float64(imgH)
	ratio := 1.0
	if w > 0 && h > 0 {
		ratio = w / h
	} else {
		w, h = minSide*ratio, minSide
	}

	cx = clamp(cx, 0, W)
	cy = clamp(cy, 0, H)

	halfWMax := math.Min(cx, W-cx)
	halfHMax := math.Min(cy, H-cy)

	if w/2 > halfWMax || h/2 > halfHMax {
		// Width is limited by horizontal bounds AND by vertical bounds scaled by aspect
		scale := math.Min(halfWMax/(w/2), halfHMax/(h/2))
		w *= scale
		h *= scale
	}

	if w < minSide || h < minSide {
		return minimal(cx, cy, ratio, W, H)
	}

	return types.Rectangle{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}
}

// minimal returns the smallest rectangle at ratio that fits the image, placed
// as close to (cx, cy) as the bounds allow
func minimal(cx, cy, ratio, W, H float64) types.Rectangle {
	w, h := minSide, minSide
	if ratio >= 1 {
		w = minSide * ratio
	} else {
		h = minSide / ratio
	}
	if w > W || h > H {
		s := math.Min(W/w, H/h)
		w *= s
		h *= s
	}
	return types.Rectangle{
		X:      clamp(cx-w/2, 0, W-w),
		Y:      clamp(cy-h/2, 0, H-h),
		Width:  w,
		Height: h,
	}
}

// matchRatio grows the shorter dimension so that w/h equals ratio
func matchRatio(w, h, ratio float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return minSide * ratio, minSide
	}
	if w/h < ratio {
		return h * ratio, h
	}
	return w, w / ratio
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
