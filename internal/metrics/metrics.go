// Package metrics exposes the pipeline's Prometheus collectors
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Jobs counts finished jobs by outcome (completed, acquisition_failed, detection_failed)
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detect_jobs_total",
		Help: "Detection jobs processed, by outcome.",
	}, []string{"outcome"})

	// StageFailures counts contained failures of best-effort stages
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detect_stage_failures_total",
		Help: "Contained failures of register/annotate/filter/handler stages.",
	}, []string{"stage", "name"})

	// Inference observes detector latency
	Inference = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "detect_inference_seconds",
		Help:    "Time spent inside the detection engine.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// Objects counts objects that survived the denoise chain
	Objects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "detect_objects_total",
		Help: "Objects dispatched to handlers, by label.",
	}, []string{"label"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
