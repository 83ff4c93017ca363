package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "app_library_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"path", "method", "status"},
	)

	// JobsEnqueued tracks enqueued processing jobs
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_library_jobs_enqueued_total",
			Help: "Number of processing jobs enqueued",
		},
		[]string{"type"},
	)

	// JobsCompleted tracks completed processing jobs
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_library_jobs_completed_total",
			Help: "Number of processing jobs completed",
		},
		[]string{"type"},
	)

	// JobsFailed tracks failed processing jobs by outcome
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_library_jobs_failed_total",
			Help: "Number of processing job failures",
		},
		[]string{"type", "outcome"},
	)

	// PipelineStageDuration tracks per-stage pipeline duration
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "app_library_pipeline_stage_duration_seconds",
			Help: "Duration of document pipeline stages in seconds",
		},
		[]string{"stage", "status"},
	)

	// DuplicatesDetected tracks duplicate uploads short-circuited at fingerprint check
	DuplicatesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "app_library_duplicates_detected_total",
			Help: "Number of byte-identical duplicate uploads detected",
		},
	)

	// ActiveConnections tracks live realtime connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_library_active_connections",
			Help: "Number of active realtime connections",
		},
	)

	// BroadcastsSent tracks session broadcast deliveries
	BroadcastsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_library_broadcasts_sent_total",
			Help: "Number of messages fanned out to session viewers",
		},
		[]string{"event"},
	)

	// EventsRejected tracks realtime messages rejected with a scoped error
	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "app_library_events_rejected_total",
			Help: "Number of inbound realtime messages rejected",
		},
		[]string{"reason"},
	)
)
