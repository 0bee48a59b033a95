package bench

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates a run for the node exporter textfile collector. Each
// run owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	Copies            *prometheus.CounterVec
	GenerationSeconds prometheus.Histogram
	DetectionSeconds  *prometheus.HistogramVec
	PrecisionError    *prometheus.HistogramVec
}

// NewMetrics registers the run metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Copies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "markers_bench_copies_total",
			Help: "Total number of copies processed, by parser and outcome",
		}, []string{"parser", "outcome"}),
		GenerationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "markers_bench_generation_seconds",
			Help:    "Time spent generating one copy",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		DetectionSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "markers_bench_detection_seconds",
			Help:    "Time spent parsing one degraded copy",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"parser"}),
		PrecisionError: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "markers_bench_precision_error_pixels",
			Help:    "Average corner error of successfully calibrated copies",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"parser"}),
	}
}

// Observe records one row.
func (m *Metrics) Observe(row Row) {
	outcome := "failure"
	if row.Success {
		outcome = "success"
		m.PrecisionError.WithLabelValues(row.Parser).Observe(row.Errors.Average)
	}
	m.Copies.WithLabelValues(row.Parser, outcome).Inc()
	m.GenerationSeconds.Observe(row.GenerationMS / 1000)
	m.DetectionSeconds.WithLabelValues(row.Parser).Observe(row.DetectionMS / 1000)
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the metrics in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
