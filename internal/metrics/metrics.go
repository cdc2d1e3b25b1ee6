// Package metrics holds the Prometheus collectors for the voice pipeline.
// They live in the default registry and are served by promhttp on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicespese_pipeline_outcomes_total",
			Help: "Voice pipeline runs by terminal outcome",
		},
		[]string{"outcome"}, // success, or the error kind
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicespese_pipeline_stage_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"}, // transcribe, extract, save
	)

	duplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicespese_duplicates_total",
			Help: "Expense candidates dropped by the duplicate window",
		},
	)

	extractionRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voicespese_extraction_rate_limited_total",
			Help: "Extraction calls rejected by the local sliding window",
		},
	)
)

func RecordOutcome(outcome string) {
	pipelineOutcomes.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func DuplicateSkipped() {
	duplicatesSkipped.Inc()
}

func ExtractionRateLimited() {
	extractionRateLimited.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
