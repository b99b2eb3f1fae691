package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	sourcesTotal    *prometheus.CounterVec
	sourceDuration  *prometheus.HistogramVec
	sourcesInFlight prometheus.Gauge
	chunksWritten   *prometheus.CounterVec
	purgedUploads   *prometheus.CounterVec

	resilience *ResilienceMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	sourcesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "legislation_sources_total",
			Help:      "Total processed legislation sources by status.",
		},
		[]string{"service", "status"},
	)
	sourceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "legislation_source_duration_seconds",
			Help:      "Legislation source ingestion duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	sourcesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "legislation_sources_in_flight",
			Help:      "Number of legislation sources currently being ingested.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksWritten := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "chunks_written_total",
			Help:      "Total legislation chunks written to the vector index.",
		},
		[]string{"service"},
	)
	purgedUploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "purged_uploads_total",
			Help:      "Total expired uploaded documents removed.",
		},
		[]string{"service"},
	)

	registry.MustRegister(sourcesTotal, sourceDuration, sourcesInFlight, chunksWritten, purgedUploads)

	return &WorkerMetrics{
		registry:        registry,
		sourcesTotal:    sourcesTotal,
		sourceDuration:  sourceDuration,
		sourcesInFlight: sourcesInFlight,
		chunksWritten:   chunksWritten,
		purgedUploads:   purgedUploads,
		resilience:      newResilienceMetrics(service, registry),
	}
}

func (m *WorkerMetrics) Resilience() *ResilienceMetrics {
	return m.resilience
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSource() {
	m.sourcesInFlight.Inc()
}

func (m *WorkerMetrics) FinishSource(service string, duration time.Duration, chunks int, err error) {
	m.sourcesInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.sourcesTotal.WithLabelValues(service, status).Inc()
	m.sourceDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if chunks > 0 {
		m.chunksWritten.WithLabelValues(service).Add(float64(chunks))
	}
}

func (m *WorkerMetrics) RecordPurged(service string, n int64) {
	if n <= 0 {
		return
	}
	m.purgedUploads.WithLabelValues(service).Add(float64(n))
}
