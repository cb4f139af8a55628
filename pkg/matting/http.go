package matting

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
)

// HTTPConfig describes a remote matting service. The service accepts a PNG
// body on Endpoint and answers with an RGBA PNG of the same size.
type HTTPConfig struct {
	Endpoint    string        `json:"endpoint"`
	HealthURL   string        `json:"health_url"`
	Timeout     time.Duration `json:"timeout"`
	QualityTier string        `json:"quality_tier"`
}

// HTTPModel is a matting model served over HTTP
type HTTPModel struct {
	config   HTTPConfig
	client   *http.Client
	ready    atomic.Bool
	loadOnce sync.Once
	loadErr  error
}

// NewHTTPModel creates a remote model. It is not ready until Load succeeds.
func NewHTTPModel(config HTTPConfig) *HTTPModel {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.QualityTier == "" {
		config.QualityTier = TierStandard
	}
	return &HTTPModel{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Ready reports whether the service answered its health check
func (m *HTTPModel) Ready() bool {
	return m.ready.Load()
}

// Load checks the service health once. Later calls return the first result.
func (m *HTTPModel) Load(ctx context.Context) error {
	m.loadOnce.Do(func() {
		m.loadErr = m.healthCheck(ctx)
		if m.loadErr == nil {
			m.ready.Store(true)
		}
	})
	return m.loadErr
}

func (m *HTTPModel) healthCheck(ctx context.Context) error {
	target := m.config.HealthURL
	if target == "" {
		target = m.config.Endpoint
	}
	if target == "" {
		return fmt.Errorf("matting endpoint not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("matting service unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("matting health check failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

// Remove sends img to the service and returns the matted subject
func (m *HTTPModel) Remove(ctx context.Context, img image.Image) (*Result, error) {
	if !m.Ready() {
		return nil, ErrNotReady
	}
	start := time.Now()

	var body bytes.Buffer
	if err := png.Encode(&body, img); err != nil {
		return nil, fmt.Errorf("failed to encode matting input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matting request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("matting service error: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out, err := png.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode matting output: %w", err)
	}

	want := img.Bounds()
	if out.Bounds().Dx() != want.Dx() || out.Bounds().Dy() != want.Dy() {
		out = imaging.Resize(out, want.Dx(), want.Dy(), imaging.Lanczos)
	}

	tier := resp.Header.Get("X-Quality-Tier")
	if tier == "" {
		tier = m.config.QualityTier
	}
	return &Result{Image: out, ProcessingTime: time.Since(start), QualityTier: tier}, nil
}
