package reconciler

import (
	"referralpay/services/intake"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_outcomes_total",
		Help: "Callback records processed, by kind and outcome.",
	}, []string{"kind", "outcome"})

	referralFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_referral_failures_total",
		Help: "Referral evaluations that failed after a deposit was credited.",
	})

	swept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_swept_total",
		Help: "Records re-enqueued by the sweeper.",
	})
)

func init() {
	prometheus.MustRegister(outcomes, referralFailures, swept)
}

func countOutcome(kind intake.Kind, outcome Outcome) {
	outcomes.WithLabelValues(string(kind), string(outcome)).Inc()
}
