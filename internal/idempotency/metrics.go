package idempotency

import "github.com/prometheus/client_golang/prometheus"

var (
	// guardOutcomes counts guarded executions by how they resolved
	// (lead | follow | replay_success | replay_failure | conflict).
	guardOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_requests_total",
			Help: "Guarded executions by resolution path.",
		},
		[]string{"outcome"},
	)

	// sweepEvicted counts records removed by TTL sweeps.
	sweepEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_evicted_total",
		Help: "Idempotency records evicted by the TTL sweeper.",
	})
)

func init() {
	prometheus.MustRegister(guardOutcomes, sweepEvicted)
}
