package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/menta2k/idphoto/internal/app"
	"github.com/menta2k/idphoto/internal/config"
	"github.com/menta2k/idphoto/internal/logger"
	"github.com/menta2k/idphoto/internal/utils"
	"github.com/menta2k/idphoto/pkg/pipeline"
	"github.com/menta2k/idphoto/pkg/processing"
	"github.com/menta2k/idphoto/pkg/types"
	"github.com/menta2k/idphoto/pkg/validation"
)

func main() {
	var in, outDir, configPath string
	var size, paper, bg, margins string
	var detector, mattingBackend, model, url string
	var ext string
	var quality int
	var threshold float64
	var debug, cutGuides, verbose, showVersion bool

	flag.StringVar(&in, "in", "", "input portrait: file, directory or http(s) URL (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&configPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" when present)")

	flag.StringVar(&size, "size", "", "photo size: 25x35|35x49|35x52")
	flag.StringVar(&paper, "paper", "", "sheet paper: 4x6|a4")
	flag.StringVar(&bg, "color", "", "background: white|light-blue|blue|red|grey or #rrggbb")
	flag.StringVar(&margins, "margins", "", "sheet margins in mm: top,bottom,left,right")
	flag.Float64Var(&threshold, "min-dpi", 0, "minimum effective resolution (default from config)")

	flag.StringVar(&detector, "detector", "", "face detector: pigo|yunet|ollama|llamacpp")
	flag.StringVar(&mattingBackend, "matting", "", "background removal: keyer|http")
	flag.StringVar(&model, "model", "", "vision model name for ollama/llamacpp detectors")
	flag.StringVar(&url, "url", "", "detector server URL (ollama/llamacpp) or matting endpoint (http)")

	flag.StringVar(&ext, "ext", "", "output format: jpg|png|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&debug, "debug", false, "write a debug overlay with the face box and crop")
	flag.BoolVar(&cutGuides, "cut-guides", false, "draw dashed cut guides on the sheet")
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")

	flag.Parse()
	if showVersion {
		fmt.Println(app.Version)
		return
	}
	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in portrait.jpg|dir|URL [-size 25x35] [-paper 4x6] [-color blue] [-margins 5,5,5,5] [-out dir]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal(err)
	}

	// Flags win over config and environment
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Output.OutputDir, outDir)
	set(&cfg.Pipeline.DefaultSize, size)
	set(&cfg.Pipeline.DefaultPaper, paper)
	set(&cfg.Pipeline.Background, bg)
	set(&cfg.Detector.Backend, detector)
	set(&cfg.Matting.Backend, mattingBackend)
	set(&cfg.Detector.Model, model)
	set(&cfg.Output.DefaultFormat, ext)
	if url != "" {
		switch cfg.Detector.Backend {
		case config.DetectorOllama:
			cfg.Detector.OllamaURL = url
		case config.DetectorLlamaCpp:
			cfg.Detector.LlamaCppURL = url
		}
		if cfg.Matting.Backend == config.MattingHTTP {
			cfg.Matting.Endpoint = url
		}
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
	if threshold > 0 {
		cfg.Pipeline.DPIThreshold = threshold
	}
	if cutGuides {
		cfg.Pipeline.CutGuides = true
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	sheetMargins, err := parseMargins(margins)
	if err != nil {
		fatal(err)
	}

	if err := logger.Init(cfg.LoggerOptions()); err != nil {
		fatal(err)
	}
	defer logger.Close()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, *log)
	if err != nil {
		fatal(err)
	}
	if err := a.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("continuing with collaborators that loaded")
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		fatal(err)
	}

	inputs := []string{in}
	if utils.DirExists(in) {
		if inputs, err = utils.ListImageFiles(in); err != nil {
			fatal(err)
		}
		log.Info().Int("files", len(inputs)).Str("dir", in).Msg("processing directory")
	}

	processor := processing.NewProcessor()
	failed := 0
	for _, input := range inputs {
		if ctx.Err() != nil {
			break
		}
		if err := processOne(ctx, a, processor, input, sheetMargins, debug); err != nil {
			failed++
			log.Error().Err(err).Str("input", input).Msg("photo failed")
		}
	}
	if failed > 0 {
		stop()
		logger.Close()
		os.Exit(1)
	}
}

func processOne(ctx context.Context, a *app.App, processor *processing.Processor, input string, margins types.Margins, debug bool) error {
	log := logger.Get()
	data, err := processor.Fetch(ctx, input)
	if err != nil {
		return err
	}
	log.Info().Str("input", input).Str("size", utils.FormatFileSize(int64(len(data)))).Msg("loaded")

	name := input
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		name = filepath.Base(strings.SplitN(input, "?", 2)[0])
	}

	req, err := a.Request(validation.File{Name: name, Data: data})
	if err != nil {
		return err
	}
	req.Margins = margins

	res, runErr := a.Process(ctx, req)
	for _, w := range res.Warnings {
		log.Warn().Str("input", input).Msg(w)
	}

	out := a.Config.Output
	path := func(suffix, format string) string {
		return utils.GenerateOutputFilename(name, out.OutputDir, out.Prefix, out.Suffix+suffix, format)
	}

	if err := writeSummary(path("", "json"), res); err != nil {
		return err
	}
	if debug && res.Source != nil {
		overlay := processing.CreateDebugOverlay(res.Source, res.Face, res.Crop)
		if err := processor.SaveImage(overlay, path("_debug", "png"), "png", 0); err != nil {
			log.Warn().Err(err).Msg("debug overlay save failed")
		}
	}
	if runErr != nil {
		if pe, ok := pipeline.AsError(runErr); ok && pe.Kind == pipeline.KindResolution {
			return fmt.Errorf("%w (use a larger source or -min-dpi %d)", runErr, pe.DPI)
		}
		return runErr
	}

	format := out.DefaultFormat
	outputs := []struct {
		suffix string
		save   func(p string) error
	}{
		{"", func(p string) error { return processor.SaveImage(res.Photo, p, format, out.Quality) }},
		{"_sheet", func(p string) error { return processor.SaveImage(res.Sheet, p, format, out.Quality) }},
		{"_preview", func(p string) error { return processor.SaveImage(res.SheetPreview, p, format, out.Quality) }},
	}
	for _, o := range outputs {
		p := path(o.suffix, format)
		if err := o.save(p); err != nil {
			return err
		}
		log.Info().Str("path", p).Msg("wrote")
	}
	log.Info().
		Str("run_id", res.RunID).
		Int("dpi", res.Resolution.Rounded()).
		Int("copies", res.Layout.TotalCount).
		Str("quality_tier", res.QualityTier).
		Msg("done")
	return nil
}

func writeSummary(path string, res *pipeline.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseMargins reads "top,bottom,left,right" in millimeters
func parseMargins(s string) (types.Margins, error) {
	if s == "" {
		return types.Margins{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.Margins{}, fmt.Errorf("margins must be top,bottom,left,right, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return types.Margins{}, fmt.Errorf("invalid margin %q: %w", p, err)
		}
		v[i] = f
	}
	return types.Margins{Top: v[0], Bottom: v[1], Left: v[2], Right: v[3]}.Clamped(), nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "idphoto:", err)
	os.Exit(1)
}
