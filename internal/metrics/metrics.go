// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package metrics exposes Prometheus instrumentation for the backup and
// restore subsystem. Every swallowed best-effort failure in the codebase
// increments NonCriticalFailures so silent problems stay discoverable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup job metrics
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_backups_total",
			Help: "Total number of backup jobs by method and outcome",
		},
		[]string{"method", "outcome"}, // method: native-dump|json-snapshot|uploaded
	)

	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockroom_backup_duration_seconds",
			Help:    "Duration of backup jobs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	BackupSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockroom_backup_last_size_bytes",
			Help: "Size in bytes of the most recent completed backup",
		},
	)

	BackupsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_backups_pruned_total",
			Help: "Total number of backups removed by the retention policy",
		},
	)

	// Restore metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_restores_total",
			Help: "Total number of restore jobs by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockroom_restore_duration_seconds",
			Help:    "Duration of restore jobs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	RestoreRowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_restore_rows_loaded_total",
			Help: "Total number of rows inserted by snapshot restores",
		},
	)

	RestoreDeferredRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_restore_deferred_rows_total",
			Help: "Rows deferred to a later pass due to foreign key violations",
		},
	)

	// Lock manager metrics
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_lock_acquisitions_total",
			Help: "Lock acquisition attempts by job, path and result",
		},
		[]string{"job", "path", "result"}, // path: redis|advisory, result: held|contended|error
	)

	// Scheduler metrics
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_scheduler_ticks_total",
			Help: "Scheduler tick outcomes by job and result",
		},
		[]string{"job", "result"}, // result: ran|disabled|not_due|locked|failed
	)

	SchedulerLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockroom_scheduler_last_run_timestamp",
			Help: "Unix timestamp of the last completed scheduled run per job",
		},
		[]string{"job"},
	)

	// Upload gateway metrics
	UploadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_uploads_rejected_total",
			Help: "Rejected backup uploads by reason",
		},
		[]string{"reason"}, // reason: extension|size
	)

	// Non-critical effect failures (file unlink, sequence reset, audit write,
	// alert email). These paths swallow their errors; the counter is the only
	// operational signal that they are failing.
	NonCriticalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_noncritical_failures_total",
			Help: "Swallowed failures of best-effort side effects",
		},
		[]string{"effect"}, // effect: file_unlink|sequence_reset|docnum_reseed|audit_write|alert_email
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockroom_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)
