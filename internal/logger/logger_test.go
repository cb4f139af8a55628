package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", Out: &buf}))
	defer Close()

	Debug("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "hello", line["message"])

	buf.Reset()
	log.Info().Str("run_id", "abc").Msg("global")
	assert.Contains(t, buf.String(), `"run_id":"abc"`)
}

func TestInitLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "loud", Out: &buf}))
	defer Close()

	Debug("hidden")
	assert.Empty(t, buf.String())
	Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "idphoto.log")
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "info", File: path, MaxSizeMB: 1, Out: &buf}))

	Error("to file")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
