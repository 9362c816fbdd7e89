// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package scheduler

import (
	"context"
	"time"

	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/lock"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
	"github.com/stockroom-hq/stockroom/internal/settings"
)

// MinPollInterval is the floor for the due-check poll loop. Anything
// shorter would hot-loop against the settings table.
const MinPollInterval = 15 * time.Second

// Run triggers.
const (
	TriggerTimer  = "timer"
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// Skip reasons. Skips are successful no-ops, never errors, so cron callers
// and UIs can tell "nothing to do" from "something went wrong".
const (
	ReasonDisabled = "disabled"
	ReasonNotDue   = "not_due"
	ReasonLocked   = "locked"
)

// RunOutcome reports what a scheduled-run attempt did.
type RunOutcome struct {
	Skipped bool           `json:"skipped"`
	Reason  string         `json:"reason,omitempty"`
	Backup  *backup.Backup `json:"backup,omitempty"`
}

// BackupRunner is the slice of the backup engine the scheduler drives.
type BackupRunner interface {
	Create(ctx context.Context, name, createdBy string) (*backup.Backup, error)
	Retention(ctx context.Context, keepLast, maxAgeDays int) (int, error)
}

// Locker acquires job locks.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lease, bool, error)
}

// ScheduleSource loads the schedule and records run bookkeeping.
type ScheduleSource interface {
	Load(ctx context.Context) (settings.Schedule, error)
	RecordRun(ctx context.Context, ranAt time.Time, backupID string) error
}

// Scheduler owns the backup timer's lifecycle. One instance is constructed
// at process boot and injected wherever runs are triggered; its Serve loop
// is the only timer, so there is no process-global start guard to manage.
type Scheduler struct {
	schedules    ScheduleSource
	locks        Locker
	backups      BackupRunner
	pollInterval time.Duration
	lockTTL      time.Duration
	now          func() time.Time
}

// New builds a Scheduler. pollInterval is clamped to MinPollInterval.
func New(schedules ScheduleSource, locks Locker, backups BackupRunner, pollInterval, lockTTL time.Duration) *Scheduler {
	if pollInterval < MinPollInterval {
		pollInterval = MinPollInterval
	}
	return &Scheduler{
		schedules:    schedules,
		locks:        locks,
		backups:      backups,
		pollInterval: pollInterval,
		lockTTL:      lockTTL,
		now:          time.Now,
	}
}

// Serve runs the polling loop until ctx is cancelled. Implements the
// suture service contract; a long-running job only delays this timer's own
// next tick.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("poll_interval", s.pollInterval).Msg("Backup scheduler started")
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	outcome, err := s.RunScheduledBackup(ctx, TriggerTimer)
	switch {
	case err != nil:
		metrics.SchedulerTicks.WithLabelValues("backup", "error").Inc()
		logging.Error().Err(err).Msg("Scheduled backup failed")
	case outcome.Skipped:
		metrics.SchedulerTicks.WithLabelValues("backup", outcome.Reason).Inc()
	default:
		metrics.SchedulerTicks.WithLabelValues("backup", "ran").Inc()
	}
}

// RunScheduledBackup executes one backup run attempt. Timer and cron
// triggers honor the enabled flag and the due-check; a manual trigger is
// always due but still competes for the job lock, so a manual run and a
// concurrent scheduled run can never both execute. Retention pruning runs
// only after non-manual runs.
func (s *Scheduler) RunScheduledBackup(ctx context.Context, trigger string) (*RunOutcome, error) {
	sched, err := s.schedules.Load(ctx)
	if err != nil {
		return nil, err
	}

	manual := trigger == TriggerManual
	if !manual {
		if !sched.Enabled {
			return &RunOutcome{Skipped: true, Reason: ReasonDisabled}, nil
		}
		if !IsDue(s.now(), sched) {
			return &RunOutcome{Skipped: true, Reason: ReasonNotDue}, nil
		}
	}

	lease, held, err := s.locks.TryAcquire(ctx, lock.JobBackup, s.lockTTL)
	if err != nil {
		// No lock path could even be attempted; skipping is still safer
		// than running unlocked.
		logging.Error().Err(err).Msg("Backup lock unavailable")
		return &RunOutcome{Skipped: true, Reason: ReasonLocked}, nil
	}
	if !held {
		return &RunOutcome{Skipped: true, Reason: ReasonLocked}, nil
	}
	defer lease.Release()

	ranAt := s.now()
	b, err := s.backups.Create(ctx, "", trigger)
	if err != nil {
		return nil, err
	}

	if err := s.schedules.RecordRun(ctx, ranAt, b.ID); err != nil {
		logging.Warn().Err(err).Msg("Recording last run failed")
	}
	metrics.SchedulerLastRun.WithLabelValues("backup").Set(float64(ranAt.Unix()))

	if !manual {
		if _, err := s.backups.Retention(ctx, sched.KeepLast, sched.MaxAgeDays); err != nil {
			logging.Warn().Err(err).Msg("Retention pruning failed")
		}
	}
	return &RunOutcome{Backup: b}, nil
}
