// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package broadcaster

import "github.com/prometheus/client_golang/prometheus"

// Broadcast outcomes.
const (
	outcomePublished = "published"
	outcomeTimedOut  = "timed_out"
	outcomeRejected  = "rejected"
	outcomeCanceled  = "canceled"
)

// Relay outcomes.
const (
	relayAccepted    = "accepted"
	relayFailed      = "failed"
	relayBreakerOpen = "breaker_open"
)

var (
	broadcastResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradewallet",
		Subsystem: "broadcaster",
		Name:      "broadcast_results_total",
		Help:      "Broadcast attempts by outcome.",
	}, []string{"outcome"})

	relayResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tradewallet",
		Subsystem: "broadcaster",
		Name:      "relay_results_total",
		Help:      "Relay requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

// Collectors returns package metrics to be registered by the caller.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{broadcastResults, relayResults}
}
