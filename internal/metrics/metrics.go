// Package metrics holds the Prometheus collectors for reaction operations
// and counter reconciliation.  Collectors register with the default
// registry; /metrics exposes them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReactionOperations counts reaction manager calls by operation
	// (add, remove, switch) and result kind (ok, not_found, ...).
	ReactionOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierama_reaction_operations_total",
			Help: "Reaction operations by operation and result",
		},
		[]string{"op", "result"},
	)

	ReactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierama_reaction_duration_seconds",
			Help:    "Reaction operation latency including lock wait",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op"},
	)

	// CounterDrift counts reaction writes whose counter adjustment failed.
	CounterDrift = promauto.NewCounter(prometheus.CounterOpts{
		Name: "movierama_counter_drift_total",
		Help: "Reaction set writes followed by a failed counter adjustment",
	})

	// ReconciledMovies counts recounts by outcome: repaired when the stored
	// counters differed from the reaction set, clean otherwise.
	ReconciledMovies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierama_reconciled_movies_total",
			Help: "Movies recounted by the reconciler",
		},
		[]string{"outcome"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierama_events_published_total",
			Help: "Domain events handed to the broker by queue and result",
		},
		[]string{"queue", "result"},
	)
)

// ObserveReaction records one reaction manager call.
func ObserveReaction(op, result string, d time.Duration) {
	ReactionOperations.WithLabelValues(op, result).Inc()
	ReactionDuration.WithLabelValues(op).Observe(d.Seconds())
}
