package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DecisionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_decisions_started_total",
			Help: "Total decision instances started",
		},
		[]string{"category"},
	)

	DecisionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_decisions_completed_total",
			Help: "Total decision instances reaching a terminal state",
		},
		[]string{"status"},
	)

	ResponsesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_responses_recorded_total",
			Help: "Total stakeholder responses accepted",
		},
	)

	ConflictSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_conflict_signals_total",
			Help: "Signals logged and ignored because they contradict decision state",
		},
		[]string{"kind"},
	)

	DispatchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_dispatch_failures_total",
			Help: "Fan-out task creations that failed after retries",
		},
	)

	TasksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_tasks_created_total",
			Help: "Total task records created",
		},
		[]string{"type"},
	)

	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorum_task_transitions_total",
			Help: "Task status transitions applied",
		},
		[]string{"from", "to"},
	)

	RemindersSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quorum_reminders_sent_total",
			Help: "Escalation reminders delivered to the webhook",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quorum_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path", "status"},
	)
)
