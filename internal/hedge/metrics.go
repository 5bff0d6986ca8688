package hedge

import "github.com/prometheus/client_golang/prometheus"

var (
	// attemptsStarted counts every upstream attempt the hedger launches,
	// including speculative ones.
	attemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ai_hedge_attempts_total",
		Help: "Total number of upstream analysis attempts started by the hedger.",
	})

	// failuresTotal counts terminal hedge failures by kind
	// (total_timeout | all_attempts_failed).
	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_hedge_failures_total",
			Help: "Terminal hedge failures by kind.",
		},
		[]string{"kind"},
	)

	// lateResults counts attempt results that arrived after the hedge
	// resolved, recorded only when Policy.RecordLate is set.
	lateResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_hedge_late_results_total",
			Help: "Attempt results observed after hedge resolution, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(attemptsStarted, failuresTotal, lateResults)
}
