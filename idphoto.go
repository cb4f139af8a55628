// Package idphoto turns a portrait into a printable identification photo.
//
// A run validates the upload, locates exactly one face, derives a
// face-anchored crop for the requested photo size, rejects crops below the
// print resolution threshold, removes the background, resamples to the exact
// pixel size at 300 DPI, fills the chosen background color and lays copies out
// on a print sheet.
//
// Basic usage:
//
//	det := detection.NewPigoDetector(detection.DefaultPigoConfig("models/facefinder"))
//	if err := det.Load(ctx); err != nil {
//		log.Fatal(err)
//	}
//	ip := idphoto.New(det, matting.NewKeyer())
//
//	res, err := ip.ProcessImageFile(ctx, "me.jpg", "out", idphoto.Options{Size: "35x49", Background: "blue"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Layout.TotalCount, "copies")
//
// The face detector and matting model are collaborators: any type that
// implements detection.FaceDetector or matting.Model can be plugged in.
// The crop calculator, resolution check and layout planner are pure functions
// and can be used on their own through SuggestCrop and PlanSheet.
package idphoto

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/menta2k/idphoto/internal/app"
	"github.com/menta2k/idphoto/pkg/cropper"
	"github.com/menta2k/idphoto/pkg/detection"
	"github.com/menta2k/idphoto/pkg/layout"
	"github.com/menta2k/idphoto/pkg/matting"
	"github.com/menta2k/idphoto/pkg/pipeline"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/resolution"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

// IDPhoto provides a high-level interface to the photo pipeline
type IDPhoto struct {
	pipeline  *pipeline.Pipeline
	processor *processing.Processor
}

// Options selects the output of one run by catalog ID. Empty fields use
// 25x35 on 4x6 paper with a white background.
type Options struct {
	Size         string        `json:"size"`
	Paper        string        `json:"paper"`
	Background   string        `json:"background"`
	Margins      types.Margins `json:"margins"`
	DPIThreshold float64       `json:"dpi_threshold"`
}

// New creates an IDPhoto with default validation and crop padding
func New(detector detection.FaceDetector, model matting.Model, opts ...pipeline.Option) *IDPhoto {
	return &IDPhoto{
		pipeline:  pipeline.New(validation.New(), detector, model, opts...),
		processor: processing.NewProcessor(),
	}
}

// NewWithConfig creates an IDPhoto with custom validation limits and padding
func NewWithConfig(validationConfig validation.Config, cropConfig cropper.CropConfig, detector detection.FaceDetector, model matting.Model, opts ...pipeline.Option) *IDPhoto {
	opts = append([]pipeline.Option{pipeline.WithCalculator(cropper.NewWithConfig(cropConfig))}, opts...)
	return &IDPhoto{
		pipeline:  pipeline.New(validation.NewWithConfig(validationConfig), detector, model, opts...),
		processor: processing.NewProcessor(),
	}
}

// Readiness reports which collaborators are loaded
func (ip *IDPhoto) Readiness() pipeline.Readiness {
	return ip.pipeline.Readiness()
}

// Request resolves opts against the catalog
func (ip *IDPhoto) Request(file validation.File, opts Options) (pipeline.Request, error) {
	req := pipeline.Request{File: file, Margins: opts.Margins, DPIThreshold: opts.DPIThreshold}

	sizeID := opts.Size
	if sizeID == "" {
		sizeID = types.Size25x35.ID
	}
	size, ok := types.LookupSize(sizeID)
	if !ok {
		return req, fmt.Errorf("unknown size %q", sizeID)
	}
	req.Size = size

	if opts.Paper != "" {
		paper, ok := types.LookupPaper(opts.Paper)
		if !ok {
			return req, fmt.Errorf("unknown paper %q", opts.Paper)
		}
		req.Paper = paper
	}

	if opts.Background != "" {
		bg, err := processing.ParseColor(opts.Background)
		if err != nil {
			return req, err
		}
		req.Background = bg
	}
	return req, nil
}

// Process runs the pipeline on an uploaded file. When the pipeline fails the
// returned result still carries the run ID and the warnings gathered so far;
// options that do not resolve fail before a run starts, with a nil result.
func (ip *IDPhoto) Process(ctx context.Context, file validation.File, opts Options) (*pipeline.Result, error) {
	req, err := ip.Request(file, opts)
	if err != nil {
		return nil, &pipeline.Error{Kind: pipeline.KindValidation, Code: pipeline.CodeInvalidRequest, Message: err.Error()}
	}
	return ip.pipeline.Run(ctx, req)
}

// ProcessImageFile is a convenience function that processes a file on disk
// and saves the photo and the sheet as JPEG in outputDir
func (ip *IDPhoto) ProcessImageFile(ctx context.Context, inputPath, outputDir string, opts Options) (*pipeline.Result, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	res, err := ip.Process(ctx, validation.File{Name: filepath.Base(inputPath), Data: data}, opts)
	if err != nil {
		return res, err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}
	base := getBaseName(inputPath)
	outputs := []struct {
		name string
		img  image.Image
	}{
		{base + "_photo.jpg", res.Photo},
		{base + "_sheet.jpg", res.Sheet},
	}
	for _, o := range outputs {
		if err := ip.processor.SaveImage(o.img, filepath.Join(outputDir, o.name), "jpg", processing.DefaultQuality); err != nil {
			return res, fmt.Errorf("failed to save %s: %w", o.name, err)
		}
	}
	return res, nil
}

// SuggestCrop returns the face-anchored crop for an image of w x h pixels and
// its effective print resolution. A nil face centers a fallback crop.
func (ip *IDPhoto) SuggestCrop(face *types.FaceBox, size types.SizeSpec, w, h int) (types.Rectangle, resolution.Measurement) {
	rect := ip.pipeline.Calculator().FaceAnchored(face, size.AspectRatio(), w, h)
	return rect, resolution.ForSize(rect, size)
}

// PlanSheet arranges copies of size on paper at 300 DPI
func PlanSheet(paper types.PaperSpec, size types.SizeSpec, margins types.Margins) types.LayoutPlan {
	return layout.Compute(paper, size, types.ReferenceDPI, margins)
}

// Version returns the library version
func Version() string {
	return app.Version
}

// getBaseName extracts the base filename without extension
func getBaseName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
