package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeploymentsCreated tracks deployments created per network and token type
	DeploymentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_deployments_created_total",
			Help: "Total number of token deployments created",
		},
		[]string{"network", "token_type"},
	)

	// StatusTransitions tracks accepted lifecycle transitions
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_status_transitions_total",
			Help: "Total number of accepted deployment status transitions",
		},
		[]string{"from", "to"},
	)

	// InvalidTransitions tracks rejected transition attempts
	InvalidTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_invalid_transitions_total",
			Help: "Total number of rejected deployment status transitions",
		},
		[]string{"from", "to"},
	)

	// PipelineRuns tracks orchestration pipeline outcomes
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_pipeline_runs_total",
			Help: "Total number of orchestration pipeline runs",
		},
		[]string{"operation", "outcome"},
	)

	// PipelineStageFailures tracks which stage a failed run stopped at
	PipelineStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_pipeline_stage_failures_total",
			Help: "Total number of pipeline failures by stage and category",
		},
		[]string{"stage", "category"},
	)

	// PipelineStageDuration tracks per-stage execution time
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "issuer_pipeline_stage_duration_seconds",
			Help:    "Orchestration pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// WebhookDeliveries tracks webhook delivery attempts by result
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_webhook_deliveries_total",
			Help: "Total number of webhook delivery outcomes",
		},
		[]string{"event", "result"},
	)

	// WebhookQueueDropped tracks notifications dropped on a full queue
	WebhookQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issuer_webhook_queue_dropped_total",
			Help: "Total number of notifications dropped because the queue was full",
		},
	)

	// ExportRequests tracks audit export requests by result
	ExportRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issuer_export_requests_total",
			Help: "Total number of audit export requests",
		},
		[]string{"format", "result"},
	)
)
