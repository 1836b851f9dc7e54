package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksConsumed counts worker tasks by name and outcome.
	TasksConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_tasks_total",
			Help: "Total number of tasks consumed by workers",
		},
		[]string{"task_name", "outcome"},
	)

	// TaskDuration measures handler execution time.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_task_duration_seconds",
			Help:    "Task handler duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"task_name"},
	)

	// ExtractionRPCDuration measures apply_template round trips.
	ExtractionRPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_rpc_duration_seconds",
			Help:    "Extraction service RPC duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
		[]string{"ad_hoc"},
	)

	// QueuePublishFailures counts failed broker publishes.
	QueuePublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_publish_failures_total",
			Help: "Total number of failed queue publishes",
		},
	)

	// InlineFallbacks counts tasks executed inline after a publish failure.
	InlineFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_inline_fallbacks_total",
			Help: "Tasks executed inline because the broker was unavailable",
		},
	)

	// FieldsCompleted counts extracting→done progress transitions.
	FieldsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fields_completed_total",
			Help: "Total number of fields reaching done",
		},
	)

	// NotificationsEmitted counts workflow filter-match notifications.
	NotificationsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_notifications_total",
			Help: "Total number of filter-match notifications emitted",
		},
	)
)
