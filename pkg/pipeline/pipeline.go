// Package pipeline sequences the stages that turn an uploaded portrait into a
// printable identification photo.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/idphoto/pkg/cropper"
	"github.com/menta2k/idphoto/pkg/detection"
	"github.com/menta2k/idphoto/pkg/layout"
	"github.com/menta2k/idphoto/pkg/matting"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/resolution"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

// FileValidator checks an uploaded file before it is decoded
type FileValidator interface {
	Validate(f validation.File) validation.Report
}

// Observer receives run telemetry
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(size, result string)
	Failure(kind, code string)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration) {}
func (nopObserver) RunFinished(string, string)         {}
func (nopObserver) Failure(string, string)             {}

// Request describes one photo to produce
type Request struct {
	File       validation.File
	Size       types.SizeSpec
	Background color.Color
	Paper      types.PaperSpec
	Margins    types.Margins
	// DPIThreshold is the minimum effective resolution; zero means resolution.ThresholdDPI
	DPIThreshold float64
	// DPI is the output resolution; zero means types.ReferenceDPI
	DPI float64
}

// Result is the outcome of a run. On failure it holds the typed error and the
// warnings gathered before the failing stage.
type Result struct {
	RunID       string                   `json:"run_id"`
	Stage       Stage                    `json:"stage"`
	Err         *Error                   `json:"error,omitempty"`
	Warnings    []string                 `json:"warnings"`
	Validation  validation.Report        `json:"validation"`
	ImageWidth  int                      `json:"image_width,omitempty"`
	ImageHeight int                      `json:"image_height,omitempty"`
	FaceCount   int                      `json:"face_count"`
	Face        *types.FaceBox           `json:"face,omitempty"`
	Crop        types.Rectangle          `json:"crop"`
	Resolution  resolution.Measurement   `json:"resolution"`
	QualityTier string                   `json:"quality_tier,omitempty"`
	Layout      types.LayoutPlan         `json:"layout"`
	Timings     map[string]time.Duration `json:"timings"`

	Source       image.Image  `json:"-"`
	Cropped      image.Image  `json:"-"`
	Subject      image.Image  `json:"-"`
	Exact        *image.NRGBA `json:"-"`
	Photo        *image.NRGBA `json:"-"`
	Preview      *image.NRGBA `json:"-"`
	Sheet        image.Image  `json:"-"`
	SheetPreview *image.NRGBA `json:"-"`
}

// Succeeded reports whether the run reached Done
func (r *Result) Succeeded() bool {
	return r.Stage == StageDone
}

// Pipeline runs requests against a validator and two model collaborators.
// A Pipeline holds no per-run state; concurrent Run calls are independent.
type Pipeline struct {
	validator  FileValidator
	detector   detection.FaceDetector
	matting    matting.Model
	calculator *cropper.Calculator
	logger     zerolog.Logger
	observer   Observer
	render     layout.RenderOptions

	previewMaxSide      int
	sheetPreviewMaxSide int
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger used for stage and run events
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithCalculator replaces the default face-anchored crop calculator
func WithCalculator(c *cropper.Calculator) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.calculator = c
		}
	}
}

// WithObserver receives stage timings and run outcomes
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithPreviewSize bounds the longer side of the photo and sheet previews
func WithPreviewSize(photo, sheet int) Option {
	return func(p *Pipeline) {
		p.previewMaxSide = photo
		p.sheetPreviewMaxSide = sheet
	}
}

// WithRenderOptions controls how the sheet is drawn
func WithRenderOptions(o layout.RenderOptions) Option {
	return func(p *Pipeline) { p.render = o }
}

// New creates a pipeline. A nil validator uses validation defaults.
func New(validator FileValidator, detector detection.FaceDetector, model matting.Model, opts ...Option) *Pipeline {
	if validator == nil {
		validator = validation.New()
	}
	p := &Pipeline{
		validator:           validator,
		detector:            detector,
		matting:             model,
		calculator:          cropper.New(),
		logger:              log.Logger,
		observer:            nopObserver{},
		render:              layout.DefaultRenderOptions(),
		previewMaxSide:      480,
		sheetPreviewMaxSide: 900,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Readiness reports which collaborators are loaded
type Readiness struct {
	Detector bool `json:"detector"`
	Matting  bool `json:"matting"`
}

// Readiness returns the collaborators' current readiness flags
func (p *Pipeline) Readiness() Readiness {
	return Readiness{
		Detector: p.detector != nil && p.detector.Ready(),
		Matting:  p.matting != nil && p.matting.Ready(),
	}
}

// Calculator returns the crop calculator used by the pipeline
func (p *Pipeline) Calculator() *cropper.Calculator {
	return p.calculator
}

type step struct {
	stage Stage
	run   func(ctx context.Context, req *Request, res *Result) *Error
}

// Run executes every stage in order and stops at the first failure. The
// returned Result is never nil; err is a *Error when the run failed.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{
		RunID:    uuid.NewString(),
		Stage:    StageValidate,
		Warnings: []string{},
		Timings:  make(map[string]time.Duration),
	}
	normalize(&req)
	logger := p.logger.With().Str("run_id", res.RunID).Str("size", req.Size.ID).Logger()
	start := time.Now()

	steps := []step{
		{StageValidate, p.validate},
		{StageLocateFace, p.locateFace},
		{StageValidateResolution, p.validateResolution},
		{StageCrop, p.crop},
		{StageRemoveBackground, p.removeBackground},
		{StageExactCrop, p.exactCrop},
		{StageApplyColor, p.applyColor},
		{StageBuildPreviews, p.buildPreviews},
	}

	for _, s := range steps {
		res.Stage = s.stage
		if err := ctx.Err(); err != nil {
			return p.fail(logger, req, res, &Error{Kind: KindProcessing, Code: CodeCancelled, Err: err})
		}

		t0 := time.Now()
		perr := s.run(ctx, &req, res)
		took := time.Since(t0)
		res.Timings[s.stage.String()] = took
		p.observer.ObserveStage(s.stage.String(), took)
		logger.Debug().Str("stage", s.stage.String()).Dur("took", took).Bool("ok", perr == nil).Msg("stage finished")

		if perr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				perr = &Error{Kind: KindProcessing, Code: CodeCancelled, Err: ctxErr}
			}
			return p.fail(logger, req, res, perr)
		}
	}

	res.Stage = StageDone
	p.observer.RunFinished(req.Size.ID, "success")
	logger.Info().
		Str("quality_tier", res.QualityTier).
		Int("copies", res.Layout.TotalCount).
		Int("warnings", len(res.Warnings)).
		Dur("took", time.Since(start)).
		Msg("photo processed")
	return res, nil
}

func (p *Pipeline) fail(logger zerolog.Logger, req Request, res *Result, e *Error) (*Result, error) {
	e.Stage = res.Stage
	res.Err = e
	res.Stage = StageFailed
	p.observer.Failure(e.Kind.String(), e.Code)
	p.observer.RunFinished(req.Size.ID, e.Kind.String())
	logger.Warn().
		Str("stage", e.Stage.String()).
		Str("kind", e.Kind.String()).
		Str("code", e.Code).
		Err(e.Err).
		Msg(e.Message)
	return res, e
}

func normalize(req *Request) {
	if req.Background == nil {
		req.Background = color.White
	}
	if req.Paper.WidthMM <= 0 || req.Paper.HeightMM <= 0 {
		req.Paper = types.Paper4x6
	}
	if req.DPI <= 0 {
		req.DPI = types.ReferenceDPI
	}
	if req.DPIThreshold <= 0 {
		req.DPIThreshold = resolution.ThresholdDPI
	}
	req.Margins = req.Margins.Clamped()
}

func (p *Pipeline) validate(ctx context.Context, req *Request, res *Result) *Error {
	if req.Size.WidthMM <= 0 || req.Size.HeightMM <= 0 {
		return &Error{Kind: KindValidation, Code: CodeInvalidRequest, Message: "photo size is required"}
	}

	report := p.validator.Validate(req.File)
	res.Validation = report
	res.Warnings = append(res.Warnings, report.Warnings...)
	if !report.Valid {
		msg := strings.Join(report.Errors, "; ")
		if msg == "" {
			msg = "file rejected"
		}
		return &Error{Kind: KindValidation, Code: CodeInvalidFile, Message: msg}
	}

	img, err := processing.Decode(req.File.Data)
	if err != nil {
		return &Error{Kind: KindValidation, Code: CodeDecodeFailed, Message: "image cannot be decoded", Err: err}
	}
	res.Source = img
	res.ImageWidth, res.ImageHeight = img.Bounds().Dx(), img.Bounds().Dy()
	return nil
}

func (p *Pipeline) locateFace(ctx context.Context, req *Request, res *Result) *Error {
	if p.detector == nil || !p.detector.Ready() {
		return &Error{Kind: KindFaceDetection, Code: CodeDetectorNotReady, Message: "face detector is not loaded"}
	}

	faces, err := p.detector.Detect(ctx, res.Source)
	if err != nil {
		return &Error{Kind: KindFaceDetection, Code: CodeDetectorFailed, Message: "face detection failed", Err: err}
	}
	res.FaceCount = len(faces)
	switch len(faces) {
	case 0:
		return &Error{Kind: KindFaceDetection, Code: CodeNoFace, Message: "no face found in the photo"}
	case 1:
	default:
		return &Error{Kind: KindFaceDetection, Code: CodeMultipleFaces,
			Message: fmt.Sprintf("%d faces found; the photo must show exactly one person", len(faces))}
	}

	face := faces[0]
	res.Face = &face
	res.Crop = p.calculator.FaceAnchored(&face, req.Size.AspectRatio(), res.ImageWidth, res.ImageHeight)
	return nil
}

func (p *Pipeline) validateResolution(ctx context.Context, req *Request, res *Result) *Error {
	m := resolution.ForSize(res.Crop, req.Size)
	res.Resolution = m
	if !m.Sufficient(req.DPIThreshold) {
		return &Error{
			Kind:    KindResolution,
			Code:    CodeLowResolution,
			DPI:     m.Rounded(),
			Message: fmt.Sprintf("crop prints at %d dpi, at least %.0f dpi is required", m.Rounded(), req.DPIThreshold),
		}
	}
	return nil
}

func (p *Pipeline) crop(ctx context.Context, req *Request, res *Result) *Error {
	region, err := processing.CropRegion(res.Source, res.Crop)
	if err != nil {
		return &Error{Kind: KindProcessing, Code: CodeInternal, Message: "crop failed", Err: err}
	}
	res.Cropped = region
	return nil
}

func (p *Pipeline) removeBackground(ctx context.Context, req *Request, res *Result) *Error {
	if p.matting == nil || !p.matting.Ready() {
		return &Error{Kind: KindMatting, Code: CodeMattingNotReady, Message: "background removal model is not loaded"}
	}

	out, err := p.matting.Remove(ctx, res.Cropped)
	if err != nil {
		return &Error{Kind: KindMatting, Code: CodeMattingFailed, Message: "background removal failed", Err: err}
	}
	if out == nil || out.Image == nil {
		return &Error{Kind: KindMatting, Code: CodeMattingFailed, Message: "background removal returned no image"}
	}
	res.Subject = out.Image
	res.QualityTier = out.QualityTier
	res.Timings["matting_model"] = out.ProcessingTime
	return nil
}

func (p *Pipeline) exactCrop(ctx context.Context, req *Request, res *Result) *Error {
	b := res.Subject.Bounds()
	full := types.Rectangle{Width: float64(b.Dx()), Height: float64(b.Dy())}
	exact, err := processing.ExactCrop(res.Subject, full, req.Size, req.DPI)
	if err != nil {
		return &Error{Kind: KindProcessing, Code: CodeInternal, Message: "resampling failed", Err: err}
	}
	res.Exact = exact
	return nil
}

func (p *Pipeline) applyColor(ctx context.Context, req *Request, res *Result) *Error {
	res.Photo = processing.ApplyBackground(res.Exact, req.Background)
	return nil
}

func (p *Pipeline) buildPreviews(ctx context.Context, req *Request, res *Result) *Error {
	plan := layout.Compute(req.Paper, req.Size, req.DPI, req.Margins)
	res.Layout = plan
	switch {
	case plan.TotalCount == 0:
		res.Warnings = append(res.Warnings, fmt.Sprintf("margins leave no printable area on %s paper", req.Paper.Name))
	case !plan.Fits:
		res.Warnings = append(res.Warnings, fmt.Sprintf("a %s photo does not fit inside the margins of %s paper", req.Size.Name, req.Paper.Name))
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Preview = processing.Thumbnail(res.Photo, p.previewMaxSide)
		return nil
	})
	g.Go(func() error {
		sheet := layout.Render(plan, res.Photo, p.render)
		res.Sheet = sheet
		res.SheetPreview = processing.Thumbnail(sheet, p.sheetPreviewMaxSide)
		return nil
	})
	if err := g.Wait(); err != nil {
		return &Error{Kind: KindProcessing, Code: CodeInternal, Message: "preview rendering failed", Err: err}
	}
	return nil
}
