package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appErrors "github.com/noah-isme/lesson-calendar-api/pkg/errors"
)

// Scheduling outcomes recorded per operation.
const (
	OutcomeSuccess             = "success"
	OutcomeSlotConflict        = "slot_conflict"
	OutcomeOutsideAvailability = "outside_availability"
	OutcomeInvalid             = "invalid"
	OutcomeNotFound            = "not_found"
	OutcomeError               = "error"
)

// MetricsService encapsulates Prometheus instrumentation. A nil receiver is a no-op.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheLookups      *prometheus.CounterVec
	operationTotal    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	lessonsWritten    *prometheus.CounterVec
}

// NewMetricsService registers the HTTP, cache and scheduling collectors.
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
		Help:    "Latency for cache reads",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_cache_lookups_total",
		Help: "Weekly availability cache lookups by result",
	}, []string{"result"})

	operationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_operations_total",
		Help: "Scheduling operations by name and outcome",
	}, []string{"operation", "outcome"})

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduling_operation_duration_seconds",
		Help:    "Duration of scheduling operations including lock wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	lessonsWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lessons_written_total",
		Help: "Lessons created, moved or cancelled",
	}, []string{"action"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		operationTotal, operationDuration, lessonsWritten, goroutines,
		collectors.NewGoCollector(),
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheLookups:      cacheLookups,
		operationTotal:    operationTotal,
		operationDuration: operationDuration,
		lessonsWritten:    lessonsWritten,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveOperation records the outcome of a scheduling operation.
func (m *MetricsService) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationTotal.WithLabelValues(operation, outcomeOf(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddLessons counts lessons touched by a committed operation.
func (m *MetricsService) AddLessons(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lessonsWritten.WithLabelValues(action).Add(float64(n))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case appErrors.HasCode(err, appErrors.ErrSlotConflict.Code):
		return OutcomeSlotConflict
	case appErrors.HasCode(err, appErrors.ErrOutsideAvailability.Code):
		return OutcomeOutsideAvailability
	case appErrors.HasCode(err, appErrors.ErrInvalidArgument.Code):
		return OutcomeInvalid
	case appErrors.HasCode(err, appErrors.ErrNotFound.Code):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
