package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Playroom. Регистрируются в default registry при импорте пакета.
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_http_requests_total",
		Help: "Total HTTP requests by method and status code",
	}, []string{"method", "code"})

	// Admissions считает исходы Submit: new, cached, quota_exceeded, upload_failed, invalid.
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_admissions_total",
		Help: "Scan submissions by outcome",
	}, []string{"outcome"})

	QuotaCountReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_quota_count_reads_total",
		Help: "Quota counter reads by source (cache or store)",
	}, []string{"source"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_stage_failures_total",
		Help: "Per-item pipeline stage failures",
	}, []string{"stage"})

	ScansProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_scans_processed_total",
		Help: "Scans finalized by the pipeline, by status",
	}, []string{"status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playroom_run_duration_seconds",
		Help:    "Pipeline run duration",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"status"})

	ModelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_model_requests_total",
		Help: "Model service requests by operation and result",
	}, []string{"operation", "result"})

	// SweepDeletions считает удаления retention: kind = scan | blob | orphan.
	SweepDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playroom_sweep_deletions_total",
		Help: "Objects deleted by the retention sweeper",
	}, []string{"kind"})

	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playroom_sweep_errors_total",
		Help: "Per-item retention failures",
	})
)
