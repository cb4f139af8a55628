package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Name:      "runs_total",
			Help:      "Pipeline runs by size and result",
		},
		[]string{"size", "result"},
	)

	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Name:      "failures_total",
			Help:      "Pipeline failures by kind and code",
		},
		[]string{"kind", "code"},
	)

	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "idphoto",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	collaboratorReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "idphoto",
			Name:      "collaborator_ready",
			Help:      "1 when the named collaborator is loaded and ready",
		},
		[]string{"name"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idphoto",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(runsTotal, failuresTotal, stageLatency, collaboratorReady, httpRequests)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveStage(stage string, dur time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func IncRun(size, result string) { runsTotal.WithLabelValues(size, result).Inc() }

func IncFailure(kind, code string) { failuresTotal.WithLabelValues(kind, code).Inc() }

func SetReady(name string, ready bool) {
	v := 0.0
	if ready {
		v = 1
	}
	collaboratorReady.WithLabelValues(name).Set(v)
}

func IncHTTP(route, status string) { httpRequests.WithLabelValues(route, status).Inc() }

// Recorder forwards pipeline telemetry to the collectors
type Recorder struct{}

func (Recorder) ObserveStage(stage string, d time.Duration) { ObserveStage(stage, d) }

func (Recorder) RunFinished(size, result string) { IncRun(size, result) }

func (Recorder) Failure(kind, code string) { IncFailure(kind, code) }
