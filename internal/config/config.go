package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/idphoto/internal/logger"
	"github.com/menta2k/idphoto/pkg/cropper"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "IDPHOTO_"

// Detector and matting backends
const (
	DetectorPigo     = "pigo"
	DetectorOllama   = "ollama"
	DetectorLlamaCpp = "llamacpp"
	DetectorYuNet    = "yunet"
	DetectorNone     = "none"

	MattingKeyer = "keyer"
	MattingHTTP  = "http"
)

// Config holds the application configuration
type Config struct {
	Pipeline   PipelineConfig   `json:"pipeline"`
	Crop       CropConfig       `json:"crop"`
	Validation ValidationConfig `json:"validation"`
	Detector   DetectorConfig   `json:"detector"`
	Matting    MattingConfig    `json:"matting"`
	Output     OutputConfig     `json:"output"`
	Logging    LoggingConfig    `json:"logging"`
	Server     ServerConfig     `json:"server"`
}

// PipelineConfig holds request defaults
type PipelineConfig struct {
	DefaultSize         string  `json:"default_size"`
	DefaultPaper        string  `json:"default_paper"`
	Background          string  `json:"background"`
	DPI                 float64 `json:"dpi"`
	DPIThreshold        float64 `json:"dpi_threshold"`
	PreviewMaxSide      int     `json:"preview_max_side"`
	SheetPreviewMaxSide int     `json:"sheet_preview_max_side"`
	CutGuides           bool    `json:"cut_guides"`
}

// CropConfig holds the face padding ratios
type CropConfig struct {
	PaddingSide        float64 `json:"padding_side"`
	PaddingTop         float64 `json:"padding_top"`
	PaddingBottom      float64 `json:"padding_bottom"`
	FallbackWidthRatio float64 `json:"fallback_width_ratio"`
}

// ValidationConfig holds upload limits
type ValidationConfig struct {
	MaxBytes          int64    `json:"max_bytes"`
	MinWidth          int      `json:"min_width"`
	MinHeight         int      `json:"min_height"`
	RecommendedWidth  int      `json:"recommended_width"`
	RecommendedHeight int      `json:"recommended_height"`
	SupportedFormats  []string `json:"supported_formats"`
}

// DetectorConfig selects and configures the face detector
type DetectorConfig struct {
	Backend        string  `json:"backend"`
	CascadePath    string  `json:"cascade_path"`
	OllamaURL      string  `json:"ollama_url"`
	LlamaCppURL    string  `json:"llamacpp_url"`
	Model          string  `json:"model"`
	YuNetSocket    string  `json:"yunet_socket"`
	MinConfidence  float64 `json:"min_confidence"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// MattingConfig selects and configures background removal
type MattingConfig struct {
	Backend        string `json:"backend"`
	Endpoint       string `json:"endpoint"`
	HealthURL      string `json:"health_url"`
	QualityTier    string `json:"quality_tier"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	Quality       int    `json:"quality"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	SaveOverlay   bool   `json:"save_overlay"`
}

// LoggingConfig mirrors logger.Options
type LoggingConfig struct {
	Level      string `json:"level"`
	Pretty     bool   `json:"pretty"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr                string `json:"addr"`
	BodyLimitMB         int    `json:"body_limit_mb"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// Default returns a configuration with default values
func Default() *Config {
	v := validation.DefaultConfig()
	return &Config{
		Pipeline: PipelineConfig{
			DefaultSize:         types.Size25x35.ID,
			DefaultPaper:        types.Paper4x6.ID,
			Background:          "white",
			DPI:                 types.ReferenceDPI,
			DPIThreshold:        300,
			PreviewMaxSide:      480,
			SheetPreviewMaxSide: 900,
		},
		Crop: CropConfig{
			PaddingSide:        cropper.DefaultPadding.Side,
			PaddingTop:         cropper.DefaultPadding.Top,
			PaddingBottom:      cropper.DefaultPadding.Bottom,
			FallbackWidthRatio: cropper.DefaultFallbackWidthRatio,
		},
		Validation: ValidationConfig{
			MaxBytes:          v.MaxBytes,
			MinWidth:          v.MinWidth,
			MinHeight:         v.MinHeight,
			RecommendedWidth:  v.RecommendedWidth,
			RecommendedHeight: v.RecommendedHeight,
			SupportedFormats:  v.SupportedFormats,
		},
		Detector: DetectorConfig{
			Backend:        DetectorPigo,
			CascadePath:    "./models/facefinder",
			OllamaURL:      "http://localhost:11434",
			LlamaCppURL:    "http://localhost:8081",
			Model:          "minicpm-v",
			YuNetSocket:    "/tmp/yunet.sock",
			MinConfidence:  0.3,
			TimeoutSeconds: 60,
		},
		Matting: MattingConfig{
			Backend:        MattingKeyer,
			Endpoint:       "http://localhost:7000/matte",
			TimeoutSeconds: 60,
			Retries:        2,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			Quality:       processing.DefaultQuality,
			OutputDir:     "./output",
			Suffix:        "_idphoto",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Pretty:     true,
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Addr:                ":8080",
			BodyLimitMB:         25,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads an optional .env file and overlays IDPHOTO_* variables.
// Variables already set in the environment win over the .env file.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	strs := map[string]*string{
		"DEFAULT_SIZE":     &c.Pipeline.DefaultSize,
		"DEFAULT_PAPER":    &c.Pipeline.DefaultPaper,
		"BACKGROUND":       &c.Pipeline.Background,
		"DETECTOR":         &c.Detector.Backend,
		"CASCADE_PATH":     &c.Detector.CascadePath,
		"OLLAMA_URL":       &c.Detector.OllamaURL,
		"LLAMACPP_URL":     &c.Detector.LlamaCppURL,
		"MODEL":            &c.Detector.Model,
		"YUNET_SOCKET":     &c.Detector.YuNetSocket,
		"MATTING":          &c.Matting.Backend,
		"MATTING_ENDPOINT": &c.Matting.Endpoint,
		"MATTING_HEALTH":   &c.Matting.HealthURL,
		"OUTPUT_DIR":       &c.Output.OutputDir,
		"OUTPUT_FORMAT":    &c.Output.DefaultFormat,
		"LOG_LEVEL":        &c.Logging.Level,
		"LOG_FILE":         &c.Logging.File,
		"ADDR":             &c.Server.Addr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"OUTPUT_QUALITY":  &c.Output.Quality,
		"MATTING_RETRIES": &c.Matting.Retries,
		"BODY_LIMIT_MB":   &c.Server.BodyLimitMB,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"DPI":                 &c.Pipeline.DPI,
		"DPI_THRESHOLD":       &c.Pipeline.DPIThreshold,
		"CROP_PADDING_SIDE":   &c.Crop.PaddingSide,
		"CROP_PADDING_TOP":    &c.Crop.PaddingTop,
		"CROP_PADDING_BOTTOM": &c.Crop.PaddingBottom,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_PRETTY: %w", EnvPrefix, err)
		}
		c.Logging.Pretty = b
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, ok := types.LookupSize(c.Pipeline.DefaultSize); !ok {
		return fmt.Errorf("pipeline.default_size %q is not a supported size", c.Pipeline.DefaultSize)
	}

	if _, ok := types.LookupPaper(c.Pipeline.DefaultPaper); !ok {
		return fmt.Errorf("pipeline.default_paper %q is not a supported paper", c.Pipeline.DefaultPaper)
	}

	if _, err := processing.ParseColor(c.Pipeline.Background); err != nil {
		return fmt.Errorf("pipeline.background: %w", err)
	}

	if c.Pipeline.DPI <= 0 || c.Pipeline.DPIThreshold <= 0 {
		return fmt.Errorf("pipeline.dpi and pipeline.dpi_threshold must be positive")
	}

	if c.Crop.PaddingSide < 0 || c.Crop.PaddingTop < 0 || c.Crop.PaddingBottom < 0 {
		return fmt.Errorf("crop padding ratios cannot be negative")
	}

	if c.Crop.FallbackWidthRatio <= 0 || c.Crop.FallbackWidthRatio > 1 {
		return fmt.Errorf("crop.fallback_width_ratio must be between 0 and 1")
	}

	if c.Validation.MaxBytes < 1 {
		return fmt.Errorf("validation.max_bytes must be positive")
	}

	if len(c.Validation.SupportedFormats) == 0 {
		return fmt.Errorf("validation.supported_formats cannot be empty")
	}

	switch c.Detector.Backend {
	case DetectorPigo, DetectorOllama, DetectorLlamaCpp, DetectorYuNet, DetectorNone:
	default:
		return fmt.Errorf("detector.backend %q is not one of pigo, ollama, llamacpp, yunet, none", c.Detector.Backend)
	}

	switch c.Matting.Backend {
	case MattingKeyer:
	case MattingHTTP:
		if c.Matting.Endpoint == "" {
			return fmt.Errorf("matting.endpoint is required for the http backend")
		}
	default:
		return fmt.Errorf("matting.backend %q is not one of keyer, http", c.Matting.Backend)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.default_format %q is not supported", c.Output.DefaultFormat)
	}

	return nil
}

// CropperConfig converts the crop section for the calculator
func (c *Config) CropperConfig() cropper.CropConfig {
	return cropper.CropConfig{
		Padding: cropper.Padding{
			Side:   c.Crop.PaddingSide,
			Top:    c.Crop.PaddingTop,
			Bottom: c.Crop.PaddingBottom,
		},
		FallbackWidthRatio: c.Crop.FallbackWidthRatio,
	}
}

// ValidatorConfig converts the validation section
func (c *Config) ValidatorConfig() validation.Config {
	return validation.Config{
		MaxBytes:          c.Validation.MaxBytes,
		MinWidth:          c.Validation.MinWidth,
		MinHeight:         c.Validation.MinHeight,
		RecommendedWidth:  c.Validation.RecommendedWidth,
		RecommendedHeight: c.Validation.RecommendedHeight,
		SupportedFormats:  c.Validation.SupportedFormats,
	}
}

// LoggerOptions converts the logging section
func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Logging.Level,
		Pretty:     c.Logging.Pretty,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// DetectorTimeout returns the per-request detector timeout
func (c *Config) DetectorTimeout() time.Duration {
	return time.Duration(c.Detector.TimeoutSeconds) * time.Second
}

// MattingTimeout returns the per-request matting timeout
func (c *Config) MattingTimeout() time.Duration {
	return time.Duration(c.Matting.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "idphoto", "config.json")
}
