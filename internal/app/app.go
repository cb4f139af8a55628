// Package app builds the pipeline and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/menta2k/idphoto/internal/config"
	"github.com/menta2k/idphoto/internal/metrics"
	"github.com/menta2k/idphoto/pkg/cropper"
	"github.com/menta2k/idphoto/pkg/detection"
	"github.com/menta2k/idphoto/pkg/layout"
	"github.com/menta2k/idphoto/pkg/llamacpp"
	"github.com/menta2k/idphoto/pkg/matting"
	"github.com/menta2k/idphoto/pkg/ollama"
	"github.com/menta2k/idphoto/pkg/pipeline"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

// Version is overridden at build time with -ldflags "-X ...app.Version=..."
var Version = "0.4.0-dev"

// App holds the configured pipeline and the collaborators it was built from
type App struct {
	Config   *config.Config
	Pipeline *pipeline.Pipeline
	Detector detection.FaceDetector
	Matting  matting.Model

	logger    zerolog.Logger
	retryWait time.Duration
}

// Option configures an App
type Option func(*App)

// WithDetector replaces the detector selected by configuration
func WithDetector(d detection.FaceDetector) Option {
	return func(a *App) { a.Detector = d }
}

// WithMatting replaces the matting model selected by configuration
func WithMatting(m matting.Model) Option {
	return func(a *App) { a.Matting = m }
}

// WithRetryWait sets the initial wait between retried runs
func WithRetryWait(d time.Duration) Option {
	return func(a *App) { a.retryWait = d }
}

// New builds an App from cfg. Collaborators are created but not loaded.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{Config: cfg, logger: logger, retryWait: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(a)
	}

	if a.Detector == nil && cfg.Detector.Backend != config.DetectorNone {
		d, err := NewDetector(cfg)
		if err != nil {
			return nil, err
		}
		a.Detector = d
	}
	if a.Matting == nil {
		a.Matting = NewMatting(cfg)
	}

	render := layout.DefaultRenderOptions()
	render.CutGuides = cfg.Pipeline.CutGuides

	a.Pipeline = pipeline.New(
		validation.NewWithConfig(cfg.ValidatorConfig()),
		a.Detector,
		a.Matting,
		pipeline.WithLogger(logger),
		pipeline.WithCalculator(cropper.NewWithConfig(cfg.CropperConfig())),
		pipeline.WithObserver(metrics.Recorder{}),
		pipeline.WithPreviewSize(cfg.Pipeline.PreviewMaxSide, cfg.Pipeline.SheetPreviewMaxSide),
		pipeline.WithRenderOptions(render),
	)
	return a, nil
}

// NewDetector creates the face detector named by cfg.Detector.Backend
func NewDetector(cfg *config.Config) (detection.FaceDetector, error) {
	dc := cfg.Detector
	switch dc.Backend {
	case config.DetectorPigo:
		return detection.NewPigoDetector(detection.DefaultPigoConfig(dc.CascadePath)), nil
	case config.DetectorYuNet:
		return detection.NewYuNetDetector(dc.YuNetSocket, cfg.DetectorTimeout()), nil
	case config.DetectorOllama:
		c, err := ollama.NewClient(dc.OllamaURL)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		opts := detection.DefaultVisionOptions(dc.Model)
		opts.MinConfidence = dc.MinConfidence
		return detection.NewVisionDetector(c, opts), nil
	case config.DetectorLlamaCpp:
		c, err := llamacpp.NewClient(dc.LlamaCppURL)
		if err != nil {
			return nil, fmt.Errorf("llama.cpp client: %w", err)
		}
		opts := detection.DefaultVisionOptions(dc.Model)
		opts.MinConfidence = dc.MinConfidence
		return detection.NewVisionDetector(c, opts), nil
	}
	return nil, fmt.Errorf("unknown detector backend %q", dc.Backend)
}

// NewMatting creates the matting model named by cfg.Matting.Backend
func NewMatting(cfg *config.Config) matting.Model {
	if cfg.Matting.Backend == config.MattingHTTP {
		return matting.NewHTTPModel(matting.HTTPConfig{
			Endpoint:    cfg.Matting.Endpoint,
			HealthURL:   cfg.Matting.HealthURL,
			Timeout:     cfg.MattingTimeout(),
			QualityTier: cfg.Matting.QualityTier,
		})
	}
	return matting.NewKeyer()
}

// Load loads every collaborator with a load lifecycle. A collaborator that
// fails to load stays not ready; runs then fail with a not-ready error.
func (a *App) Load(ctx context.Context) error {
	var errs []error
	if l, ok := a.Detector.(detection.Loader); ok {
		if err := l.Load(ctx); err != nil {
			a.logger.Error().Err(err).Str("backend", a.Config.Detector.Backend).Msg("face detector failed to load")
			errs = append(errs, fmt.Errorf("detector: %w", err))
		}
	}
	if l, ok := a.Matting.(matting.Loader); ok {
		if err := l.Load(ctx); err != nil {
			a.logger.Error().Err(err).Str("backend", a.Config.Matting.Backend).Msg("matting model failed to load")
			errs = append(errs, fmt.Errorf("matting: %w", err))
		}
	}

	r := a.Pipeline.Readiness()
	metrics.SetReady("detector", r.Detector)
	metrics.SetReady("matting", r.Matting)
	a.logger.Info().Bool("detector", r.Detector).Bool("matting", r.Matting).Msg("collaborators loaded")
	return errors.Join(errs...)
}

// Request builds a pipeline request from the configured defaults
func (a *App) Request(file validation.File) (pipeline.Request, error) {
	pc := a.Config.Pipeline
	size, _ := types.LookupSize(pc.DefaultSize)
	paper, _ := types.LookupPaper(pc.DefaultPaper)
	bg, err := processing.ParseColor(pc.Background)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		File:         file,
		Size:         size,
		Paper:        paper,
		Background:   bg,
		DPI:          pc.DPI,
		DPIThreshold: pc.DPIThreshold,
	}, nil
}

// Process runs req and retries transient collaborator failures with
// exponential backoff, up to Matting.Retries extra attempts.
func (a *App) Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.retryWait
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(0, a.Config.Matting.Retries))), ctx)

	attempt := 0
	var last *pipeline.Result
	res, err := backoff.RetryWithData(func() (*pipeline.Result, error) {
		attempt++
		res, err := a.Pipeline.Run(ctx, req)
		last = res
		if err == nil {
			return res, nil
		}
		if !Transient(err) {
			return res, backoff.Permanent(err)
		}
		a.logger.Warn().Err(err).Int("attempt", attempt).Msg("transient failure, retrying")
		return res, err
	}, policy)
	if err != nil && last != nil && last.Err != nil {
		// report the typed run error rather than a context error from the policy
		return last, last.Err
	}
	return res, err
}

// Transient reports whether a failed run may succeed when repeated
func Transient(err error) bool {
	return pipeline.HasCode(err, pipeline.CodeMattingFailed) || pipeline.HasCode(err, pipeline.CodeDetectorFailed)
}
