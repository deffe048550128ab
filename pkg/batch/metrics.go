package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskTransitions counts accepted lifecycle transitions by target state.
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchdl_task_transitions_total",
			Help: "Total number of task lifecycle transitions by target state",
		},
		[]string{"state"},
	)

	// TasksRunning tracks tasks currently in the started state.
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchdl_tasks_running",
			Help: "Number of tasks currently dispatching items",
		},
	)

	// DiscardedOutcomes counts outcomes that arrived after a task was stopped.
	DiscardedOutcomes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchdl_discarded_outcomes_total",
			Help: "Total number of outcomes discarded because the task was stopped",
		},
	)
)
