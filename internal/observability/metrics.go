// Package observability exposes Prometheus metrics for the coordination core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsGranted counts successful resource claims.
	ClaimsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "locks",
		Name:      "claims_granted_total",
		Help:      "Number of resource claims granted.",
	})

	// ClaimsDenied counts denied resource claims (contention).
	ClaimsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "locks",
		Name:      "claims_denied_total",
		Help:      "Number of resource claims denied due to contention.",
	})

	// ClaimsExpired counts claims reclaimed by the expiry sweep.
	ClaimsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "locks",
		Name:      "claims_expired_total",
		Help:      "Number of expired claims removed by the sweep.",
	})

	// TasksByTransition counts task lifecycle transitions.
	TasksByTransition = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "tasks",
		Name:      "transitions_total",
		Help:      "Number of task lifecycle transitions by target status.",
	}, []string{"status"})

	// MessagesDelivered counts messages written to agent inboxes.
	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "messaging",
		Name:      "messages_delivered_total",
		Help:      "Number of messages persisted to agent inboxes.",
	})

	// MessagesProcessed counts messages consumed by inbox pollers.
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "messaging",
		Name:      "messages_processed_total",
		Help:      "Number of inbox messages processed, by outcome.",
	}, []string{"outcome"})

	// ExecutionsByStatus counts test execution completions.
	ExecutionsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "testing",
		Name:      "executions_total",
		Help:      "Number of test executions by terminal status.",
	}, []string{"status"})

	// SweepRuns counts background sweep iterations.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "sweeps",
		Name:      "runs_total",
		Help:      "Number of background sweep iterations by sweep name.",
	}, []string{"sweep"})

	// IssuesAssigned counts orchestrator issue assignments.
	IssuesAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmesh",
		Subsystem: "orchestrator",
		Name:      "issues_assigned_total",
		Help:      "Number of issues assigned to agents.",
	})
)
