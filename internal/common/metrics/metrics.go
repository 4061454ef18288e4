// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_submitted_total",
			Help: "Total number of submitted notification events by terminal outcome",
		},
		[]string{"outcome", "source"},
	)

	NotificationStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_stage_duration_seconds",
			Help:    "Duration of each notification pipeline stage in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	NotificationStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_store_errors_total",
			Help: "Total number of dedup, rate limiter and audit store errors",
		},
		[]string{"store"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
