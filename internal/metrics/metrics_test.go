package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(runsTotal.WithLabelValues("25x35", "success"))
	IncRun("25x35", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("25x35", "success")))

	SetReady("matting", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(collaboratorReady.WithLabelValues("matting")))
	SetReady("matting", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(collaboratorReady.WithLabelValues("matting")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	Init()
	ObserveStage("crop", 15*time.Millisecond)
	IncFailure("face_detection", "no-face")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "idphoto_stage_duration_seconds")
	assert.Contains(t, string(body), `idphoto_failures_total{code="no-face",kind="face_detection"}`)
}

func TestRecorder(t *testing.T) {
	Init()
	var r Recorder
	before := testutil.ToFloat64(failuresTotal.WithLabelValues("matting", "matting-failed"))
	r.Failure("matting", "matting-failed")
	r.RunFinished("35x49", "matting")
	r.ObserveStage("remove_background", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(failuresTotal.WithLabelValues("matting", "matting-failed")))
	assert.Positive(t, testutil.CollectAndCount(stageLatency))
}
