// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package funding

import "github.com/prometheus/client_golang/prometheus"

var (
	feeIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tradewallet",
		Subsystem: "funding",
		Name:      "fee_convergence_iterations",
		Help:      "Completion attempts needed for the mining fee to converge.",
		Buckets:   prometheus.LinearBuckets(1, 1, MaxIterations),
	})

	feeNotConverged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tradewallet",
		Subsystem: "funding",
		Name:      "fee_not_converged_total",
		Help:      "Fee convergence loops exhausted without getting into tolerance.",
	})
)

// Collectors returns package metrics to be registered by the caller.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{feeIterations, feeNotConverged}
}
