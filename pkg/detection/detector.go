// Package detection locates faces in portrait photos. Several backends are
// available: a local pigo cascade, a YuNet service on a unix socket and a
// vision language model reached through Ollama or llama.cpp.
package detection

import (
	"context"
	"errors"
	"image"
	"sort"

	"github.com/menta2k/idphoto/pkg/types"
)

// ErrNotReady is returned by Detect before the detector finished loading
var ErrNotReady = errors.New("face detector not ready")

// FaceDetector finds faces in an image. Boxes are in the image's pixel space,
// relative to its top-left corner.
type FaceDetector interface {
	Ready() bool
	Detect(ctx context.Context, img image.Image) ([]types.FaceBox, error)
}

// Loader is implemented by detectors with an explicit load-once lifecycle
type Loader interface {
	Load(ctx context.Context) error
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clipFaces clips boxes to the image, drops the ones left without area and
// orders the rest by confidence
func clipFaces(faces []types.FaceBox, w, h int) []types.FaceBox {
	W, H := float64(w), float64(h)
	out := make([]types.FaceBox, 0, len(faces))
	for _, f := range faces {
		x0 := clamp(f.X, 0, W)
		y0 := clamp(f.Y, 0, H)
		x1 := clamp(f.X+f.Width, 0, W)
		y1 := clamp(f.Y+f.Height, 0, H)
		if x1-x0 <= 0 || y1-y0 <= 0 {
			continue
		}
		out = append(out, types.FaceBox{
			Rectangle:  types.Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0},
			Confidence: f.Confidence,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
