package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics owns a private registry so the API process exposes
// exactly the series it registers, without default Go runtime collectors
// colliding across test instances.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal  *prometheus.CounterVec
	searchNoResultsTotal prometheus.Counter
	searchResults        prometheus.Histogram
	searchDuration       *prometheus.HistogramVec
	ingestBatchesTotal   prometheus.Counter
	ingestChunksTotal    prometheus.Counter
	rebuildsTotal        *prometheus.CounterVec
	rebuildDuration      prometheus.Histogram
	lexicalDocuments     prometheus.Gauge
	cacheFlushesTotal    prometheus.Counter
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Total HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hre",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hre",
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: constLabels,
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "search",
			Name:        "requests_total",
			Help:        "Total successful search requests by fusion strategy.",
			ConstLabels: constLabels,
		},
		[]string{"strategy"},
	)
	searchNoResultsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "search",
			Name:        "no_results_total",
			Help:        "Total search requests that returned no results.",
			ConstLabels: constLabels,
		},
	)
	searchResults := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "hre",
			Subsystem:   "search",
			Name:        "results",
			Help:        "Distribution of result counts per successful search.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
			ConstLabels: constLabels,
		},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "hre",
			Subsystem:   "search",
			Name:        "duration_seconds",
			Help:        "Search execution duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"strategy"},
	)
	ingestBatchesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "ingest",
			Name:        "batches_total",
			Help:        "Total accepted chunk batches.",
			ConstLabels: constLabels,
		},
	)
	ingestChunksTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "ingest",
			Name:        "chunks_total",
			Help:        "Total accepted chunks across batches.",
			ConstLabels: constLabels,
		},
	)
	rebuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "lexical",
			Name:        "rebuilds_total",
			Help:        "Total lexical index rebuilds by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	rebuildDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "hre",
			Subsystem:   "lexical",
			Name:        "rebuild_duration_seconds",
			Help:        "Lexical index rebuild duration in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			ConstLabels: constLabels,
		},
	)
	lexicalDocuments := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "hre",
			Subsystem:   "lexical",
			Name:        "documents",
			Help:        "Number of chunks in the current lexical index snapshot.",
			ConstLabels: constLabels,
		},
	)
	cacheFlushesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "hre",
			Subsystem:   "cache",
			Name:        "flushes_total",
			Help:        "Total explicit cache flushes.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchNoResultsTotal,
		searchResults,
		searchDuration,
		ingestBatchesTotal,
		ingestChunksTotal,
		rebuildsTotal,
		rebuildDuration,
		lexicalDocuments,
		cacheFlushesTotal,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		searchRequestsTotal:  searchRequestsTotal,
		searchNoResultsTotal: searchNoResultsTotal,
		searchResults:        searchResults,
		searchDuration:       searchDuration,
		ingestBatchesTotal:   ingestBatchesTotal,
		ingestChunksTotal:    ingestChunksTotal,
		rebuildsTotal:        rebuildsTotal,
		rebuildDuration:      rebuildDuration,
		lexicalDocuments:     lexicalDocuments,
		cacheFlushesTotal:    cacheFlushesTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds per-batch URLs into one series so batch IDs
// never explode label cardinality.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/batches/"):
		return "/v1/batches/{batch_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearch(strategy string, resultCount int, duration time.Duration) {
	if strategy == "" {
		strategy = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(strategy).Inc()
	m.searchResults.Observe(float64(resultCount))
	m.searchDuration.WithLabelValues(strategy).Observe(duration.Seconds())

	if resultCount == 0 {
		m.searchNoResultsTotal.Inc()
	}
}

func (m *HTTPServerMetrics) RecordIngest(chunkCount int) {
	m.ingestBatchesTotal.Inc()
	m.ingestChunksTotal.Add(float64(chunkCount))
}

func (m *HTTPServerMetrics) RecordRebuild(documents int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.rebuildsTotal.WithLabelValues(status).Inc()
	m.rebuildDuration.Observe(duration.Seconds())
	if err == nil {
		m.lexicalDocuments.Set(float64(documents))
	}
}

func (m *HTTPServerMetrics) RecordCacheFlush() {
	m.cacheFlushesTotal.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
