// Package validation checks uploaded portrait files before any processing.
package validation

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp"
)

// File is an uploaded file as received from the caller
type File struct {
	Name string
	Data []byte
}

// Report is the outcome of validating a file. Errors block processing;
// warnings are advisory.
type Report struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Format      string   `json:"format,omitempty"`
	MIME        string   `json:"mime,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Orientation int      `json:"orientation,omitempty"`
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Config holds validation limits
type Config struct {
	MaxBytes          int64    `json:"max_bytes"`
	MinWidth          int      `json:"min_width"`
	MinHeight         int      `json:"min_height"`
	RecommendedWidth  int      `json:"recommended_width"`
	RecommendedHeight int      `json:"recommended_height"`
	SupportedFormats  []string `json:"supported_formats"`
}

// DefaultConfig accepts camera and phone portraits up to 20 MiB
func DefaultConfig() Config {
	return Config{
		MaxBytes:          20 << 20,
		MinWidth:          300,
		MinHeight:         400,
		RecommendedWidth:  600,
		RecommendedHeight: 800,
		SupportedFormats:  []string{"jpeg", "png", "webp"},
	}
}

// Validator checks files against a Config
type Validator struct {
	config Config
}

// New creates a Validator with the default configuration
func New() *Validator {
	return &Validator{config: DefaultConfig()}
}

// NewWithConfig creates a Validator with custom limits. Zero values fall back
// to the defaults.
func NewWithConfig(config Config) *Validator {
	def := DefaultConfig()
	if config.MaxBytes <= 0 {
		config.MaxBytes = def.MaxBytes
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = def.SupportedFormats
	}
	return &Validator{config: config}
}

// Config returns the validator configuration
func (v *Validator) Config() Config {
	return v.config
}

// mimeFormats maps detected MIME types to decoder format names
var mimeFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Validate inspects the file's bytes, never its name alone
func (v *Validator) Validate(f File) Report {
	var r Report

	if len(f.Data) == 0 {
		r.fail("file is empty")
		return r
	}
	if int64(len(f.Data)) > v.config.MaxBytes {
		r.fail("file is %d bytes, the limit is %d", len(f.Data), v.config.MaxBytes)
		return r
	}

	mt := mimetype.Detect(f.Data)
	r.MIME = mt.String()
	format, known := mimeFormats[mt.String()]
	if !known || !v.isFormatSupported(format) {
		r.fail("unsupported file type %s", mt.String())
		return r
	}
	r.Format = format

	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Name), ".")); ext != "" && !extensionMatches(ext, format) {
		r.warn("file extension .%s does not match its %s content", ext, format)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		r.fail("image cannot be decoded: %v", err)
		return r
	}
	r.Width, r.Height = cfg.Width, cfg.Height

	if format == "jpeg" {
		if o := orientation(f.Data); o > 1 {
			r.Orientation = o
			r.warn("EXIF orientation %d: the photo will be rotated upright before cropping", o)
			if o >= 5 {
				r.Width, r.Height = r.Height, r.Width
			}
		}
	}

	if r.Width < v.config.MinWidth || r.Height < v.config.MinHeight {
		r.fail("image too small: %dx%d (minimum: %dx%d)", r.Width, r.Height, v.config.MinWidth, v.config.MinHeight)
	} else if r.Width < v.config.RecommendedWidth || r.Height < v.config.RecommendedHeight {
		r.warn("image is %dx%d; %dx%d or larger gives better prints", r.Width, r.Height,
			v.config.RecommendedWidth, v.config.RecommendedHeight)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (v *Validator) isFormatSupported(format string) bool {
	for _, supported := range v.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

func extensionMatches(ext, format string) bool {
	switch format {
	case "jpeg":
		return ext == "jpg" || ext == "jpeg" || ext == "jfif"
	default:
		return ext == format
	}
}

// orientation returns the EXIF orientation tag, or 0 when absent
func orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return o
}
