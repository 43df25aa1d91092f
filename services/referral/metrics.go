package referral

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var payouts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "referral_payouts_total",
	Help: "Referral bonuses credited, by tier.",
}, []string{"tier"})

func init() {
	prometheus.MustRegister(payouts)
}

func countPayout(tier int) {
	payouts.WithLabelValues(strconv.Itoa(tier)).Inc()
}
