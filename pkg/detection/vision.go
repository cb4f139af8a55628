package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/disintegration/imaging"

	"github.com/menta2k/idphoto/pkg/client"
	"github.com/menta2k/idphoto/pkg/types"
)

// FacePrompt asks a vision model for every human face in the image
const FacePrompt = `You are a face locator for identification photos.

Return JSON only:
{
  "faces": [
    {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0, "confidence": 0.0}
  ],
  "description": "short neutral sentence (≤ 15 words)"
}

HARD RULES
- List every human face that is visible, including partial faces and faces in the background.
- Each box covers the face from hairline to chin and ear to ear, not the hair or shoulders.
- All coordinates are normalized to [0,1] (NOT pixels); x,y is the top-left corner.
- If there is no face, return {"faces": [], "description": "no face"}.
- Do not guess identities.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionOptions tunes how images are sent to the model
type VisionOptions struct {
	Model         string
	Prompt        string
	MaxDim        int
	Quality       int
	MinConfidence float64
}

// DefaultVisionOptions returns the options used by the CLI and server
func DefaultVisionOptions(model string) VisionOptions {
	return VisionOptions{Model: model, Prompt: FacePrompt, MaxDim: 768, Quality: 85, MinConfidence: 0.3}
}

// VisionDetector asks a vision language model for face boxes
type VisionDetector struct {
	client client.VisionClient
	opts   VisionOptions
	ready  atomic.Bool
}

// NewVisionDetector creates a detector. It is not ready until Load succeeds.
func NewVisionDetector(c client.VisionClient, opts VisionOptions) *VisionDetector {
	def := DefaultVisionOptions(opts.Model)
	if opts.Prompt == "" {
		opts.Prompt = def.Prompt
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = def.MaxDim
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	return &VisionDetector{client: c, opts: opts}
}

// Load pings the model server
func (d *VisionDetector) Load(ctx context.Context) error {
	if err := d.client.Ping(ctx); err != nil {
		return err
	}
	d.ready.Store(true)
	return nil
}

// Ready reports whether the model server answered
func (d *VisionDetector) Ready() bool {
	return d.ready.Load()
}

// Detect returns the faces the model reports, converted to pixel boxes
func (d *VisionDetector) Detect(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if !d.Ready() {
		return nil, ErrNotReady
	}
	imgB64, err := PrepareImageForModel(img, d.opts.MaxDim, d.opts.Quality)
	if err != nil {
		return nil, err
	}

	analysis, err := d.client.AnalyzeFaces(ctx, d.opts.Model, d.opts.Prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision model: %w", err)
	}

	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	faces := make([]types.FaceBox, 0, len(analysis.Faces))
	for _, f := range analysis.Faces {
		// Models that omit confidence report zero; treat it as unknown
		if f.Confidence > 0 && f.Confidence < d.opts.MinConfidence {
			continue
		}
		faces = append(faces, types.FaceBox{
			Rectangle: types.Rectangle{
				X:      clamp(f.X, 0, 1) * w,
				Y:      clamp(f.Y, 0, 1) * h,
				Width:  clamp(f.W, 0, 1) * w,
				Height: clamp(f.H, 0, 1) * h,
			},
			Confidence: f.Confidence,
		})
	}
	return clipFaces(faces, b.Dx(), b.Dy()), nil
}

// PrepareImageForModel downsizes img and encodes it as base64 JPEG
func PrepareImageForModel(img image.Image, maxDim, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		if b.Dx() > maxDim || b.Dy() > maxDim {
			if b.Dx() >= b.Dy() {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return "", fmt.Errorf("failed to encode image for model: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
