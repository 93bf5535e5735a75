package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	// SubmitTotal counts order-edit submit outcomes by session mode.
	SubmitTotal *prometheus.CounterVec
	// SubmitStepFailures counts which saga step an edit submit failed at.
	SubmitStepFailures *prometheus.CounterVec
	// RecalculateTotal counts best-effort backend recalculation hints.
	RecalculateTotal *prometheus.CounterVec
	// LineRemovalTotal counts eager existing-line deletions.
	LineRemovalTotal *prometheus.CounterVec
	// CacheRequests counts read-model cache lookups by outcome.
	CacheRequests *prometheus.CounterVec
	// BackendRequestDuration records backend call latency in milliseconds.
	BackendRequestDuration *prometheus.HistogramVec
	// BreakerState exposes the backend circuit breaker state as a gauge.
	BreakerState *prometheus.GaugeVec
)

// MustRegisterMetrics initialises and registers the POS collectors. Passing a
// nil registerer uses the default one.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_total",
			Help:      "Count of order submit outcomes.",
		}, []string{"mode", "result"})
		SubmitStepFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_step_failures_total",
			Help:      "Count of edit-mode submit failures by saga step.",
		}, []string{"step"})
		RecalculateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recalculate_total",
			Help:      "Count of best-effort order recalculation hints.",
		}, []string{"result"})
		LineRemovalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_removal_total",
			Help:      "Count of eager order-line deletions.",
		}, []string{"result"})
		CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Count of read-model cache lookups.",
		}, []string{"key", "result"})
		BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of backend API calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"})
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"target"})

		reg.MustRegister(
			SubmitTotal,
			SubmitStepFailures,
			RecalculateTotal,
			LineRemovalTotal,
			CacheRequests,
			BackendRequestDuration,
			BreakerState,
		)
	})
}

// ObserveCache records a cache lookup outcome. Safe to call before metrics are
// registered.
func ObserveCache(key string, hit bool) {
	if CacheRequests == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequests.WithLabelValues(key, result).Inc()
}
