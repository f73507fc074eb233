// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AuthDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turkey",
		Name:      "auth_decisions_total",
		Help:      "Admin authorization decisions by outcome.",
	}, []string{"outcome"})

	MintEventsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "turkey",
		Name:      "mint_events_created_total",
		Help:      "Mint events queued.",
	})

	MintTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turkey",
		Name:      "mint_transitions_total",
		Help:      "Applied mint event status transitions.",
	}, []string{"from", "to"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turkey",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "code"})
)
