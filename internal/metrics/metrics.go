// Package metrics exposes Prometheus collectors for the orchestrator core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts finished scenario executions by final status.
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenark",
		Name:      "executions_total",
		Help:      "Scenario executions by scenario name and final status.",
	}, []string{"scenario", "status"})

	// PreconditionFailuresTotal counts runs rejected before any step ran.
	PreconditionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenark",
		Name:      "precondition_failures_total",
		Help:      "Runs rejected by a precondition, by error code.",
	}, []string{"code"})

	// StepDurationSeconds observes wall-clock duration of executed steps.
	StepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scenark",
		Name:      "step_duration_seconds",
		Help:      "Step execution duration including retries.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"integration", "status"})

	// StepRetriesTotal counts individual retry attempts across all steps.
	StepRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scenark",
		Name:      "step_retries_total",
		Help:      "Retry attempts performed by the step runner.",
	})

	// CleanupResourcesTotal counts compensation outcomes per resource.
	CleanupResourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scenark",
		Name:      "cleanup_resources_total",
		Help:      "Cleanup sweep outcomes by result.",
	}, []string{"result"})
)
