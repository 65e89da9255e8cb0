package service

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the report
// client and the stub report server.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	submissions        *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec
	downloadBytes      *prometheus.CounterVec
	referenceLoads     *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheWrite         prometheus.Observer

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_submissions_total",
		Help: "Report submissions by kind and outcome",
	}, []string{"kind", "outcome"})

	submissionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_submission_duration_seconds",
		Help:    "Time from submit to terminal event",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	downloadBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_download_bytes_total",
		Help: "Bytes received from report endpoints",
	}, []string{"kind"})

	referenceLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reference_data_loads_total",
		Help: "Corporate account list loads by outcome",
	}, []string{"outcome"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests served by the stub report server",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests served by the stub report server",
	}, []string{"method", "path", "status"})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reference_cache_hit_ratio",
		Help: "Ratio of cache hits to total reference cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reference_cache_hits_total",
		Help: "Total reference cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reference_cache_misses_total",
		Help: "Total reference cache misses",
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reference_cache_write_seconds",
		Help:    "Latency for reference cache writes",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(submissions, submissionDuration, downloadBytes, referenceLoads, requestDuration, requestTotal, cacheHitRatio, cacheHits, cacheMisses, cacheWrite)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		submissions:        submissions,
		submissionDuration: submissionDuration,
		downloadBytes:      downloadBytes,
		referenceLoads:     referenceLoads,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		cacheWrite:         cacheWrite,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveSubmission records the terminal outcome of one submission.
func (m *MetricsService) ObserveSubmission(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
	m.submissionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// AddDownloadBytes counts bytes read from a report response.
func (m *MetricsService) AddDownloadBytes(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.downloadBytes.WithLabelValues(kind).Add(float64(n))
}

// RecordReferenceLoad counts account list loads.
func (m *MetricsService) RecordReferenceLoad(outcome string) {
	if m == nil {
		return
	}
	m.referenceLoads.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records stub server request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
