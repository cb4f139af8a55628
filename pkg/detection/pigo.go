package detection

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"sync/atomic"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/idphoto/pkg/types"
)

// PigoConfig holds the cascade location and detection parameters
type PigoConfig struct {
	CascadePath      string  `json:"cascade_path"`
	MinSize          int     `json:"min_size"`
	MaxSize          int     `json:"max_size"`
	ShiftFactor      float64 `json:"shift_factor"`
	ScaleFactor      float64 `json:"scale_factor"`
	IoUThreshold     float64 `json:"iou_threshold"`
	QualityThreshold float32 `json:"quality_threshold"`
}

// DefaultPigoConfig returns parameters tuned for a single frontal portrait
func DefaultPigoConfig(cascadePath string) PigoConfig {
	return PigoConfig{
		CascadePath:      cascadePath,
		MinSize:          40,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// PigoDetector runs the pigo pixel-intensity cascade locally
type PigoDetector struct {
	config     PigoConfig
	classifier *pigo.Pigo
	ready      atomic.Bool
	loadOnce   sync.Once
	loadErr    error
}

// NewPigoDetector creates a detector. It is not ready until Load succeeds.
func NewPigoDetector(config PigoConfig) *PigoDetector {
	def := DefaultPigoConfig(config.CascadePath)
	if config.MinSize <= 0 {
		config.MinSize = def.MinSize
	}
	if config.ShiftFactor <= 0 {
		config.ShiftFactor = def.ShiftFactor
	}
	if config.ScaleFactor <= 1 {
		config.ScaleFactor = def.ScaleFactor
	}
	if config.IoUThreshold <= 0 {
		config.IoUThreshold = def.IoUThreshold
	}
	if config.QualityThreshold <= 0 {
		config.QualityThreshold = def.QualityThreshold
	}
	return &PigoDetector{config: config}
}

// Load reads and unpacks the cascade file once
func (d *PigoDetector) Load(ctx context.Context) error {
	d.loadOnce.Do(func() {
		if err := ctx.Err(); err != nil {
			d.loadErr = err
			return
		}
		data, err := os.ReadFile(d.config.CascadePath)
		if err != nil {
			d.loadErr = fmt.Errorf("failed to read cascade file: %w", err)
			return
		}
		d.loadErr = d.unpack(data)
	})
	return d.loadErr
}

func (d *PigoDetector) unpack(data []byte) (err error) {
	// Unpack indexes into the buffer without bounds checks
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to unpack cascade: %v", r)
		}
	}()
	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return fmt.Errorf("failed to unpack cascade: %w", err)
	}
	d.classifier = classifier
	d.ready.Store(true)
	return nil
}

// Ready reports whether the cascade is loaded
func (d *PigoDetector) Ready() bool {
	return d.ready.Load()
}

// Detect runs the cascade over a grayscale copy of img
func (d *PigoDetector) Detect(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if !d.Ready() {
		return nil, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	maxSize := d.config.MaxSize
	if maxSize <= 0 {
		maxSize = min(b.Dx(), b.Dy())
	}

	cParams := pigo.CascadeParams{
		MinSize:     d.config.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.config.ShiftFactor,
		ScaleFactor: d.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: toGrayscale(img),
			Rows:   b.Dy(),
			Cols:   b.Dx(),
			Dim:    b.Dx(),
		},
	}

	// Angle 0: frontal faces only
	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.config.IoUThreshold)

	return clipFaces(convertPigoDetections(dets, d.config.QualityThreshold), b.Dx(), b.Dy()), nil
}

// toGrayscale converts image to grayscale pixel array
func toGrayscale(img image.Image) []uint8 {
	b := img.Bounds()
	w := b.Dx()
	gray := make([]uint8, w*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			gray[(y-b.Min.Y)*w+(x-b.Min.X)] = uint8(((r*299 + g*587 + bl*114) / 1000) >> 8)
		}
	}
	return gray
}

// convertPigoDetections turns pigo's center/scale circles into boxes,
// dropping low-quality hits. Q is mapped to a 0-1 confidence.
func convertPigoDetections(dets []pigo.Detection, threshold float32) []types.FaceBox {
	var faces []types.FaceBox
	for _, det := range dets {
		if det.Q < threshold {
			continue
		}
		half := float64(det.Scale) / 2
		faces = append(faces, types.FaceBox{
			Rectangle: types.Rectangle{
				X:      float64(det.Col) - half,
				Y:      float64(det.Row) - half,
				Width:  float64(det.Scale),
				Height: float64(det.Scale),
			},
			Confidence: clamp(float64(det.Q)/100, 0, 1),
		})
	}
	return faces
}
