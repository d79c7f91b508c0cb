package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns a private Prometheus registry for HTTP, cache, approval and ledger metrics.
// All methods are safe on a nil receiver.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	submissions     *prometheus.CounterVec
	resolutions     *prometheus.CounterVec
	movements       *prometheus.CounterVec
	driftedProducts prometheus.Gauge
	notifications   *prometheus.CounterVec
}

func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_submissions_total",
		Help: "Privileged mutations submitted, by request type and outcome",
	}, []string{"type", "outcome"})

	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_resolutions_total",
		Help: "Approval requests resolved, by request type and decision",
	}, []string{"type", "decision"})

	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_movements_total",
		Help: "Stock ledger rows appended, by movement type",
	}, []string{"type"})

	driftedProducts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stock_ledger_drifted_products",
		Help: "Products whose ledger did not explain their stock at the last reconciliation",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Notification events published, by subject and result",
	}, []string{"subject", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHits, cacheMisses,
		submissions, resolutions, movements, driftedProducts, notifications, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		submissions:     submissions,
		resolutions:     resolutions,
		movements:       movements,
		driftedProducts: driftedProducts,
		notifications:   notifications,
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

// Registry is exposed for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

func (m *MetricsService) RecordSubmission(requestType, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(requestType, outcome).Inc()
}

func (m *MetricsService) RecordResolution(requestType, decision string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(requestType, decision).Inc()
}

func (m *MetricsService) RecordMovement(movementType string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(movementType).Inc()
}

func (m *MetricsService) SetDriftedProducts(n int) {
	if m == nil {
		return
	}
	m.driftedProducts.Set(float64(n))
}

func (m *MetricsService) RecordNotification(subject string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(subject, result).Inc()
}
