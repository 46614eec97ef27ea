package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks swap submissions by outcome (accepted, invalid_amount, ...).
	SwapSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_submissions_total",
			Help: "Total number of swap submissions (by outcome).",
		},
		[]string{"outcome"},
	)

	// Tracks terminal intent transitions.
	SwapTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_transitions_total",
			Help: "Total number of terminal intent transitions (by status).",
		},
		[]string{"status"},
	)

	QuoteCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_requests_total",
			Help: "Quote cache lookups (hit or miss).",
		},
		[]string{"result"},
	)

	// Measures duration of route provider calls.
	RouteProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "route_provider_duration_seconds",
			Help:    "Duration of route provider quote calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"provider"},
	)

	SweepIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_intents_total",
			Help: "Intents processed by the recovery sweeper (by outcome).",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of a full recovery sweep in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// ObserveDuration records the time since start on the given histogram.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case prometheus.Histogram:
		metric.Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncSubmission(outcome string) {
	SwapSubmissionsTotal.WithLabelValues(outcome).Inc()
}

func IncTransition(status string) {
	SwapTransitionsTotal.WithLabelValues(status).Inc()
}

func IncQuoteCache(result string) {
	QuoteCacheTotal.WithLabelValues(result).Inc()
}

func IncSweepIntent(outcome string) {
	SweepIntentsTotal.WithLabelValues(outcome).Inc()
}
