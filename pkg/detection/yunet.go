package detection

import (
	"context"
	"fmt"
	"image"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/menta2k/idphoto/pkg/types"
)

// yunetRequest is one RGB frame sent to the YuNet service
type yunetRequest struct {
	Height int    `msgpack:"h"`
	Width  int    `msgpack:"w"`
	Data   []byte `msgpack:"d"` // RGB uint8, row-major, shape (H, W, 3)
}

type yunetDetection struct {
	X          float32   `msgpack:"x"`
	Y          float32   `msgpack:"y"`
	Width      float32   `msgpack:"w"`
	Height     float32   `msgpack:"h"`
	Confidence float32   `msgpack:"c"`
	Landmarks  []float32 `msgpack:"l"`
}

type yunetResponse struct {
	Detections  []yunetDetection `msgpack:"detections"`
	InferenceMs float32          `msgpack:"inference_ms"`
}

// YuNetDetector sends frames to a YuNet inference service over a unix socket
type YuNetDetector struct {
	socketPath    string
	timeout       time.Duration
	minConfidence float64
	ready         atomic.Bool
}

// NewYuNetDetector creates a client for the service listening on socketPath
func NewYuNetDetector(socketPath string, timeout time.Duration) *YuNetDetector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &YuNetDetector{socketPath: socketPath, timeout: timeout, minConfidence: 0.6}
}

// Load checks that the service accepts connections
func (d *YuNetDetector) Load(ctx context.Context) error {
	var dialer net.Dialer
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to yunet service: %w", err)
	}
	conn.Close()
	d.ready.Store(true)
	return nil
}

// Ready reports whether the service answered
func (d *YuNetDetector) Ready() bool {
	return d.ready.Load()
}

// Detect sends img as raw RGB and returns the service's detections
func (d *YuNetDetector) Detect(ctx context.Context, img image.Image) ([]types.FaceBox, error) {
	if !d.Ready() {
		return nil, ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to yunet service: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	b := img.Bounds()
	reqData, err := msgpack.Marshal(yunetRequest{Height: b.Dy(), Width: b.Dx(), Data: toRGB(img)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	respData, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp yunetResponse
	if err := msgpack.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	faces := make([]types.FaceBox, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		if float64(det.Confidence) < d.minConfidence {
			continue
		}
		faces = append(faces, types.FaceBox{
			Rectangle: types.Rectangle{
				X:      float64(det.X),
				Y:      float64(det.Y),
				Width:  float64(det.Width),
				Height: float64(det.Height),
			},
			Confidence: float64(det.Confidence),
		})
	}
	return clipFaces(faces, b.Dx(), b.Dy()), nil
}

// toRGB packs img into row-major RGB bytes
func toRGB(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
	return out
}
