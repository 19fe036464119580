package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lms-billing-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the billing API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	paymentsTotal   *prometheus.CounterVec
	settledTotal    prometheus.Counter
	lockTransitions *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	sweepPlans      *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
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

	paymentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_total",
		Help: "Payment ledger rows by type and outcome",
	}, []string{"type", "status"})

	settledTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "installments_settled_total",
		Help: "Installments flipped to paid",
	})

	lockTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_lock_transitions_total",
		Help: "Plan lock and unlock transitions",
	}, []string{"direction"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overdue_sweep_duration_seconds",
		Help:    "Duration of overdue sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	sweepPlans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "overdue_sweep_plans_total",
		Help: "Plans examined by the sweeper by outcome",
	}, []string{"outcome"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
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

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, paymentsTotal, settledTotal, lockTransitions, sweepDuration, sweepPlans, cacheLatency, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		paymentsTotal:   paymentsTotal,
		settledTotal:    settledTotal,
		lockTransitions: lockTransitions,
		sweepDuration:   sweepDuration,
		sweepPlans:      sweepPlans,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
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
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordPayment counts a ledger row outcome.
func (m *MetricsService) RecordPayment(paymentType models.PaymentType, status models.PaymentStatus) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(string(paymentType), string(status)).Inc()
}

// RecordSettledInstallments counts installments flipped to paid.
func (m *MetricsService) RecordSettledInstallments(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.settledTotal.Add(float64(count))
}

// RecordLockTransition counts plan lock or unlock events.
func (m *MetricsService) RecordLockTransition(locked bool) {
	if m == nil {
		return
	}
	direction := "unlock"
	if locked {
		direction = "lock"
	}
	m.lockTransitions.WithLabelValues(direction).Inc()
}

// RecordSweep records a sweep run and its per-plan outcomes.
func (m *MetricsService) RecordSweep(duration time.Duration, locked, unlocked, completed, failed int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepPlans.WithLabelValues("locked").Add(float64(locked))
	m.sweepPlans.WithLabelValues("unlocked").Add(float64(unlocked))
	m.sweepPlans.WithLabelValues("completed").Add(float64(completed))
	m.sweepPlans.WithLabelValues("failed").Add(float64(failed))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
