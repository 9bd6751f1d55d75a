package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus instruments shared across components.
type Metrics struct {
	Turns          *prometheus.CounterVec
	Completions    *prometheus.CounterVec
	Fallbacks      prometheus.Counter
	Errors         *prometheus.CounterVec
	TurnLatency    *prometheus.HistogramVec
	ActiveSessions prometheus.Gauge
}

// New registers the instruments under the given namespace on the default
// registry.
func New(namespace string) *Metrics {
	return &Metrics{
		Turns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_turns_total",
			Help:      "Processed dialogue turns by outcome.",
		}, []string{"outcome"}),
		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_completions_total",
			Help:      "Completed task frames by intent.",
		}, []string{"intent"}),
		Fallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_fallbacks_total",
			Help:      "Turns routed to the fallback policy.",
		}),
		Errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by component.",
		}, []string{"component"}),
		TurnLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end turn processing latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Live conversation sessions.",
		}),
	}
}
