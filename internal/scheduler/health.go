// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/lock"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
	"github.com/stockroom-hq/stockroom/internal/settings"
)

// KeyHealthStatus stores the most recent health-check result.
const KeyHealthStatus = "backup.healthcheck.status"

// Notifier delivers alerts. Implementations are best effort; the checker
// never fails over a notification problem.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}

// BackupLister is the slice of the backup repository the checker reads.
type BackupLister interface {
	List(ctx context.Context) ([]*backup.Backup, error)
}

// HealthStatus is the persisted result of one health check.
type HealthStatus struct {
	Healthy      bool      `json:"healthy"`
	Database     string    `json:"database"`
	Storage      string    `json:"storage"`
	LastBackup   string    `json:"lastBackup"`
	CheckedAt    time.Time `json:"checkedAt"`
	FailureCount int       `json:"failureCount"`
}

// HealthChecker verifies that backups can actually be taken: database
// reachable, backup directory writable, and the newest completed backup not
// older than the schedule's cadence allows. Runs under its own job lock on
// its own timer, so a long backup never blocks health checks.
type HealthChecker struct {
	db           *database.DB
	store        *settings.Store
	schedules    *settings.ScheduleStore
	backups      BackupLister
	locks        Locker
	notifier     Notifier
	dir          string
	pollInterval time.Duration
	lockTTL      time.Duration
	now          func() time.Time
}

// NewHealthChecker builds a HealthChecker. pollInterval is clamped to
// MinPollInterval.
func NewHealthChecker(db *database.DB, store *settings.Store, backups BackupLister, locks Locker, notifier Notifier, dir string, pollInterval, lockTTL time.Duration) *HealthChecker {
	if pollInterval < MinPollInterval {
		pollInterval = MinPollInterval
	}
	return &HealthChecker{
		db:           db,
		store:        store,
		schedules:    settings.NewScheduleStore(store, settings.KeyHealthCheckConfig),
		backups:      backups,
		locks:        locks,
		notifier:     notifier,
		dir:          dir,
		pollInterval: pollInterval,
		lockTTL:      lockTTL,
		now:          time.Now,
	}
}

// Serve runs the health-check polling loop until ctx is cancelled.
func (h *HealthChecker) Serve(ctx context.Context) error {
	logging.Info().Dur("poll_interval", h.pollInterval).Msg("Health checker started")
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := h.RunHealthCheck(ctx, TriggerTimer); err != nil {
				metrics.SchedulerTicks.WithLabelValues("healthcheck", "error").Inc()
				logging.Error().Err(err).Msg("Health check failed to run")
			}
		}
	}
}

// RunHealthCheck executes one health-check attempt with the same skip
// semantics as backup runs.
func (h *HealthChecker) RunHealthCheck(ctx context.Context, trigger string) (*RunOutcome, error) {
	sched, err := h.schedules.Load(ctx)
	if err != nil {
		return nil, err
	}

	manual := trigger == TriggerManual
	if !manual {
		if !sched.Enabled {
			metrics.SchedulerTicks.WithLabelValues("healthcheck", ReasonDisabled).Inc()
			return &RunOutcome{Skipped: true, Reason: ReasonDisabled}, nil
		}
		if !IsDue(h.now(), sched) {
			metrics.SchedulerTicks.WithLabelValues("healthcheck", ReasonNotDue).Inc()
			return &RunOutcome{Skipped: true, Reason: ReasonNotDue}, nil
		}
	}

	lease, held, err := h.locks.TryAcquire(ctx, lock.JobHealthCheck, h.lockTTL)
	if err != nil || !held {
		if err != nil {
			logging.Error().Err(err).Msg("Health-check lock unavailable")
		}
		metrics.SchedulerTicks.WithLabelValues("healthcheck", ReasonLocked).Inc()
		return &RunOutcome{Skipped: true, Reason: ReasonLocked}, nil
	}
	defer lease.Release()

	status := h.check(ctx)
	h.persist(ctx, status)
	if err := h.schedules.RecordRun(ctx, status.CheckedAt, ""); err != nil {
		logging.Warn().Err(err).Msg("Recording health-check run failed")
	}
	metrics.SchedulerTicks.WithLabelValues("healthcheck", "ran").Inc()
	metrics.SchedulerLastRun.WithLabelValues("healthcheck").Set(float64(status.CheckedAt.Unix()))

	if !status.Healthy {
		h.notifier.Notify(ctx, "Backup health check failed",
			fmt.Sprintf("database: %s\nstorage: %s\nlast backup: %s",
				status.Database, status.Storage, status.LastBackup))
	}
	return &RunOutcome{}, nil
}

func (h *HealthChecker) check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:    true,
		Database:   "ok",
		Storage:    "ok",
		LastBackup: "ok",
		CheckedAt:  h.now().UTC(),
	}

	if err := h.db.Ping(ctx); err != nil {
		status.Healthy = false
		status.Database = err.Error()
	}
	if err := probeWritable(h.dir); err != nil {
		status.Healthy = false
		status.Storage = err.Error()
	}
	if msg := h.checkBackupAge(ctx); msg != "" {
		status.Healthy = false
		status.LastBackup = msg
	}
	return status
}

// checkBackupAge flags a stale newest backup when backups are scheduled.
// Returns "" when healthy.
func (h *HealthChecker) checkBackupAge(ctx context.Context) string {
	backupSched, err := settings.NewScheduleStore(h.store, settings.KeyBackupSchedule).Load(ctx)
	if err != nil || !backupSched.Enabled {
		return "" // nothing is promised, nothing can be stale
	}

	maxAge := 26 * time.Hour
	if backupSched.Frequency == settings.FrequencyWeekly {
		maxAge = 8 * 24 * time.Hour
	}

	backups, err := h.backups.List(ctx)
	if err != nil {
		return fmt.Sprintf("listing backups: %v", err)
	}
	for _, b := range backups {
		if b.Status == backup.StatusCompleted {
			if age := h.now().Sub(b.CreatedAt); age > maxAge {
				return fmt.Sprintf("newest completed backup is %s old", age.Round(time.Minute))
			}
			return ""
		}
	}
	return "no completed backup exists"
}

func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".health-"+uuid.NewString()[:8])
	if err := os.WriteFile(probe, []byte("ok"), 0o640); err != nil {
		return err
	}
	return os.Remove(probe)
}

func (h *HealthChecker) persist(ctx context.Context, status HealthStatus) {
	raw, err := json.Marshal(status)
	if err == nil {
		err = h.store.UpsertByKey(ctx, KeyHealthStatus, raw)
	}
	if err != nil {
		logging.Warn().Err(err).Msg("Persisting health status failed")
	}
}
