package admin

import "github.com/prometheus/client_golang/prometheus"

var disbursements = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "admin_disbursements_total",
	Help: "Disbursement attempts issued on withdrawal approval, by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(disbursements)
}
