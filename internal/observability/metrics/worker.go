package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	indexTotal    *prometheus.CounterVec
	indexDuration *prometheus.HistogramVec
	indexInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	indexTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "worker",
			Name:        "batch_index_total",
			Help:        "Total indexed chunk batches by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	indexDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hre",
			Subsystem:   "worker",
			Name:        "batch_index_duration_seconds",
			Help:        "Batch indexing duration in seconds by status.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	indexInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hre",
			Subsystem:   "worker",
			Name:        "batch_index_in_flight",
			Help:        "Number of batches currently being indexed.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(indexTotal, indexDuration, indexInFlight)

	return &WorkerMetrics{
		registry:      registry,
		indexTotal:    indexTotal,
		indexDuration: indexDuration,
		indexInFlight: indexInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch() {
	m.indexInFlight.Inc()
}

func (m *WorkerMetrics) FinishBatch(duration time.Duration, err error) {
	m.indexInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.indexTotal.WithLabelValues(status).Inc()
	m.indexDuration.WithLabelValues(status).Observe(duration.Seconds())
}
