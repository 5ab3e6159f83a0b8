package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talos_validations_total",
		Help: "License validation requests by outcome code.",
	}, []string{"outcome"})

	bindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talos_binds_total",
		Help: "License bind requests by outcome code.",
	}, []string{"outcome"})

	jobTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talos_job_transitions_total",
		Help: "State transitions applied by background jobs.",
	}, []string{"job"})
)

// CountJobTransitions records transitions applied by a background sweep.
func CountJobTransitions(job string, n int) {
	jobTransitionsTotal.WithLabelValues(job).Add(float64(n))
}
