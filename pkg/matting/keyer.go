package matting

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// KeyerConfig tunes the border-color keyer
type KeyerConfig struct {
	// BorderRatio is the share of the shorter side sampled along each edge
	BorderRatio float64 `json:"border_ratio"`
	// Pixels closer than Inner (CIE Lab distance) to the backdrop become transparent,
	// pixels farther than Outer stay opaque, with a linear ramp in between.
	Inner float64 `json:"inner"`
	Outer float64 `json:"outer"`
}

// DefaultKeyerConfig works for portraits shot against a plain wall
func DefaultKeyerConfig() KeyerConfig {
	return KeyerConfig{BorderRatio: 0.04, Inner: 0.08, Outer: 0.18}
}

// Keyer is a local model that treats the dominant border color as backdrop.
// It needs no weights and is always ready.
type Keyer struct {
	config KeyerConfig
}

// NewKeyer creates a keyer with the default configuration
func NewKeyer() *Keyer {
	return NewKeyerWithConfig(DefaultKeyerConfig())
}

// NewKeyerWithConfig creates a keyer, replacing invalid settings with defaults
func NewKeyerWithConfig(config KeyerConfig) *Keyer {
	def := DefaultKeyerConfig()
	if config.BorderRatio <= 0 || config.BorderRatio >= 0.5 {
		config.BorderRatio = def.BorderRatio
	}
	if config.Inner < 0 || config.Outer <= config.Inner {
		config.Inner, config.Outer = def.Inner, def.Outer
	}
	return &Keyer{config: config}
}

// Ready always reports true
func (k *Keyer) Ready() bool { return true }

// Load is a no-op
func (k *Keyer) Load(ctx context.Context) error { return ctx.Err() }

// Remove keys out pixels that match the backdrop color
func (k *Keyer) Remove(ctx context.Context, img image.Image) (*Result, error) {
	start := time.Now()
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()

	backdrop := k.Backdrop(src)
	out := image.NewNRGBA(src.Bounds())
	copy(out.Pix, src.Pix)

	span := k.config.Outer - k.config.Inner
	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i := y * src.Stride
		for x := 0; x < w; x++ {
			c := colorful.Color{
				R: float64(src.Pix[i]) / 255,
				G: float64(src.Pix[i+1]) / 255,
				B: float64(src.Pix[i+2]) / 255,
			}
			d := c.DistanceLab(backdrop)
			var a float64
			switch {
			case d <= k.config.Inner:
				a = 0
			case d >= k.config.Outer:
				a = 1
			default:
				a = (d - k.config.Inner) / span
			}
			out.Pix[i+3] = uint8(a*float64(src.Pix[i+3]) + 0.5)
			i += 4
		}
	}

	return &Result{Image: out, ProcessingTime: time.Since(start), QualityTier: TierBasic}, nil
}

// Backdrop estimates the background color from the most frequent quantized
// color along the image border
func (k *Keyer) Backdrop(img *image.NRGBA) colorful.Color {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	band := max(1, int(float64(min(w, h))*k.config.BorderRatio))

	type bucket struct {
		count   int
		r, g, b int
	}
	hist := make(map[uint32]*bucket)
	var best *bucket

	sample := func(x, y int) {
		i := y*img.Stride + x*4
		r, g, b := img.Pix[i], img.Pix[i+1], img.Pix[i+2]
		// Quantize colors to reduce noise
		key := uint32(r&0xf0)<<16 | uint32(g&0xf0)<<8 | uint32(b&0xf0)
		bk, ok := hist[key]
		if !ok {
			bk = &bucket{}
			hist[key] = bk
		}
		bk.count++
		bk.r += int(r)
		bk.g += int(g)
		bk.b += int(b)
		if best == nil || bk.count > best.count {
			best = bk
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < band || x >= w-band || y < band || y >= h-band {
				sample(x, y)
			}
		}
	}
	if best == nil {
		return colorful.Color{R: 1, G: 1, B: 1}
	}

	n := float64(best.count) * 255
	return colorful.Color{R: float64(best.r) / n, G: float64(best.g) / n, B: float64(best.b) / n}
}

// BackdropColor returns the estimated backdrop of img as an opaque color
func (k *Keyer) BackdropColor(img image.Image) color.NRGBA {
	r, g, b := k.Backdrop(imaging.Clone(img)).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}
