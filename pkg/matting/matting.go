// Package matting separates the subject of a portrait from its background.
package matting

import (
	"context"
	"errors"
	"image"
	"time"
)

// Quality tiers reported by models
const (
	TierBasic    = "basic"
	TierStandard = "standard"
	TierHigh     = "high"
)

// ErrNotReady is returned by Remove before a model finished loading
var ErrNotReady = errors.New("matting model not ready")

// Result is a subject raster whose alpha channel is the foreground matte
type Result struct {
	Image          image.Image
	ProcessingTime time.Duration
	QualityTier    string
}

// Model removes the background of an image
type Model interface {
	Ready() bool
	Remove(ctx context.Context, img image.Image) (*Result, error)
}

// Loader is implemented by models with an explicit load-once lifecycle
type Loader interface {
	Load(ctx context.Context) error
}
