package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/idphoto/pkg/cropper"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "25x35", c.Pipeline.DefaultSize)
	assert.Equal(t, DetectorPigo, c.Detector.Backend)
	assert.Equal(t, MattingKeyer, c.Matting.Backend)
	assert.Equal(t, cropper.DefaultPadding, c.CropperConfig().Padding)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown size", func(c *Config) { c.Pipeline.DefaultSize = "40x50" }},
		{"unknown paper", func(c *Config) { c.Pipeline.DefaultPaper = "letter" }},
		{"bad background", func(c *Config) { c.Pipeline.Background = "sparkly" }},
		{"zero dpi", func(c *Config) { c.Pipeline.DPI = 0 }},
		{"negative padding", func(c *Config) { c.Crop.PaddingTop = -1 }},
		{"fallback ratio", func(c *Config) { c.Crop.FallbackWidthRatio = 1.5 }},
		{"no formats", func(c *Config) { c.Validation.SupportedFormats = nil }},
		{"detector backend", func(c *Config) { c.Detector.Backend = "haar" }},
		{"matting backend", func(c *Config) { c.Matting.Backend = "gpu" }},
		{"http without endpoint", func(c *Config) { c.Matting.Backend = MattingHTTP; c.Matting.Endpoint = "" }},
		{"quality", func(c *Config) { c.Output.Quality = 0 }},
		{"format", func(c *Config) { c.Output.DefaultFormat = "gif" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c := Default()
	c.Detector.Backend = DetectorOllama
	c.Crop.PaddingTop = 1.2
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"output":{"quality":80}}`), 0644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 80, c.Output.Quality)
	assert.Equal(t, "jpg", c.Output.DefaultFormat)
	assert.Equal(t, ":8080", c.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("IDPHOTO_DETECTOR", "yunet")
	t.Setenv("IDPHOTO_OUTPUT_QUALITY", "77")
	t.Setenv("IDPHOTO_DPI_THRESHOLD", "250")
	t.Setenv("IDPHOTO_LOG_PRETTY", "false")
	t.Setenv("IDPHOTO_CROP_PADDING_TOP", "1.2")

	c := Default()
	require.NoError(t, c.ApplyEnv(filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, DetectorYuNet, c.Detector.Backend)
	assert.Equal(t, 77, c.Output.Quality)
	assert.Equal(t, 250.0, c.Pipeline.DPIThreshold)
	assert.False(t, c.Logging.Pretty)
	assert.Equal(t, 1.2, c.Crop.PaddingTop)
}

func TestApplyEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("IDPHOTO_MATTING_RETRIES=5\n"), 0644))
	t.Setenv("IDPHOTO_MATTING_RETRIES", "")
	os.Unsetenv("IDPHOTO_MATTING_RETRIES")

	c := Default()
	require.NoError(t, c.ApplyEnv(envFile))
	assert.Equal(t, 5, c.Matting.Retries)
}

func TestApplyEnvBadNumber(t *testing.T) {
	t.Setenv("IDPHOTO_OUTPUT_QUALITY", "high")
	assert.Error(t, Default().ApplyEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestGetConfigPath(t *testing.T) {
	assert.Contains(t, GetConfigPath(), "config.json")
}
