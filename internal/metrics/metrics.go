// Package metrics exposes the control-plane prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksSubmitted counts accepted task submissions
	TasksSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agenthive_tasks_submitted_total",
		Help: "Tasks accepted into the scheduler queue",
	})

	// TasksRejected counts submissions rejected with QueueFull
	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agenthive_tasks_rejected_total",
		Help: "Task submissions rejected because the queue was full",
	})

	// TasksDispatched counts requests sent to agents
	TasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agenthive_tasks_dispatched_total",
		Help: "Tasks dispatched to agents",
	})

	// TasksCompleted counts successful completions
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agenthive_tasks_completed_total",
		Help: "Tasks completed successfully",
	})

	// TasksFailed counts failures by reason
	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenthive_tasks_failed_total",
		Help: "Tasks failed, labeled by reason",
	}, []string{"reason"})

	// QueueDepth gauges the current scheduler queue size
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agenthive_queue_depth",
		Help: "Current scheduler queue depth",
	})

	// SLAViolations counts emitted SLA violations by severity
	SLAViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenthive_sla_violations_total",
		Help: "SLA violations emitted, labeled by severity",
	}, []string{"severity"})

	// HOOTLCycles counts autonomy cycles by outcome
	HOOTLCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenthive_hootl_cycles_total",
		Help: "HOOTL cycles executed, labeled by outcome",
	}, []string{"outcome"})

	// PolicyExecutions counts policy action runs
	PolicyExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agenthive_policy_executions_total",
		Help: "Policy executions, labeled by policy id",
	}, []string{"policy"})

	// ActiveAgents gauges the registered active agent count
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agenthive_active_agents",
		Help: "Currently active registered agents",
	})
)

// Handler returns the prometheus scrape handler for the control API
func Handler() http.Handler {
	return promhttp.Handler()
}
