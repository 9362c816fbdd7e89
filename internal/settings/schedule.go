// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/stockroom-hq/stockroom/internal/validation"
)

// Settings keys for the backup subsystem's singleton documents.
const (
	KeyBackupSchedule    = "backup.schedule"
	KeyHealthCheckConfig = "backup.healthcheck"
)

// Schedule frequencies.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Schedule is the backup schedule document. Validation tags cover admin
// updates; ParseSchedule heals unknown or missing fields to defaults so a
// corrupt stored document never blocks the scheduler.
type Schedule struct {
	Enabled      bool   `json:"enabled"`
	Frequency    string `json:"frequency" validate:"required,oneof=daily weekly"`
	DayOfWeek    int    `json:"dayOfWeek" validate:"min=0,max=6"`
	Time         string `json:"time" validate:"required,hhmm"`
	TimeZone     string `json:"timeZone" validate:"required,timezone"`
	KeepLast     int    `json:"keepLast" validate:"min=0,max=200"`
	MaxAgeDays   int    `json:"maxAgeDays" validate:"min=0,max=3650"`
	LastRunAt    string `json:"lastRunAt,omitempty"`
	LastBackupID string `json:"lastBackupId,omitempty"`
}

// DefaultSchedule returns the documented defaults: disabled, daily at 02:00
// UTC, keep the last 7 backups, no age cap.
func DefaultSchedule() Schedule {
	return Schedule{
		Enabled:    false,
		Frequency:  FrequencyDaily,
		DayOfWeek:  0,
		Time:       "02:00",
		TimeZone:   "UTC",
		KeepLast:   7,
		MaxAgeDays: 0,
	}
}

// ParseSchedule decodes a stored schedule document, replacing any invalid
// field with its default. Missing fields never produce errors.
func ParseSchedule(raw []byte) Schedule {
	sched := DefaultSchedule()
	if len(raw) == 0 {
		return sched
	}

	var doc Schedule
	if err := json.Unmarshal(raw, &doc); err != nil {
		return sched
	}

	sched.Enabled = doc.Enabled
	if doc.Frequency == FrequencyDaily || doc.Frequency == FrequencyWeekly {
		sched.Frequency = doc.Frequency
	}
	if doc.DayOfWeek >= 0 && doc.DayOfWeek <= 6 {
		sched.DayOfWeek = doc.DayOfWeek
	}
	if validation.IsHHMM(doc.Time) {
		sched.Time = doc.Time
	}
	if doc.TimeZone != "" {
		if _, err := time.LoadLocation(doc.TimeZone); err == nil {
			sched.TimeZone = doc.TimeZone
		}
	}
	if doc.KeepLast >= 0 && doc.KeepLast <= 200 {
		sched.KeepLast = doc.KeepLast
	}
	if doc.MaxAgeDays >= 0 && doc.MaxAgeDays <= 3650 {
		sched.MaxAgeDays = doc.MaxAgeDays
	}
	sched.LastRunAt = doc.LastRunAt
	sched.LastBackupID = doc.LastBackupID
	return sched
}

// Location resolves the schedule's time zone, falling back to UTC.
func (s Schedule) Location() *time.Location {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ScheduleStore layers schedule semantics over the raw settings store for
// one schedule key (the backup schedule or the health-check schedule).
type ScheduleStore struct {
	store *Store
	key   string
}

// NewScheduleStore returns a ScheduleStore for the given settings key.
func NewScheduleStore(store *Store, key string) *ScheduleStore {
	return &ScheduleStore{store: store, key: key}
}

// Load returns the current schedule. A missing document yields the defaults.
func (ss *ScheduleStore) Load(ctx context.Context) (Schedule, error) {
	raw, err := ss.store.FindByKey(ctx, ss.key)
	if errors.Is(err, ErrNotFound) {
		return DefaultSchedule(), nil
	}
	if err != nil {
		return Schedule{}, err
	}
	return ParseSchedule(raw), nil
}

// Save validates and persists a full schedule document. Admin updates go
// through here: the caller merges the incoming change over the previous
// document before calling.
func (ss *ScheduleStore) Save(ctx context.Context, sched Schedule) error {
	if verr := validation.ValidateStruct(sched); verr != nil {
		return verr
	}
	raw, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	return ss.store.UpsertByKey(ctx, ss.key, raw)
}

// RecordRun patches the last-run bookkeeping fields without revalidating the
// rest of the document. Only the scheduler writes these.
func (ss *ScheduleStore) RecordRun(ctx context.Context, ranAt time.Time, backupID string) error {
	sched, err := ss.Load(ctx)
	if err != nil {
		return err
	}
	sched.LastRunAt = ranAt.UTC().Format(time.RFC3339)
	sched.LastBackupID = backupID
	raw, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encoding schedule: %w", err)
	}
	return ss.store.UpsertByKey(ctx, ss.key, raw)
}

// LastRun parses the stored last-run timestamp. The zero time means the
// schedule has never run.
func (s Schedule) LastRun() time.Time {
	if s.LastRunAt == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s.LastRunAt)
	if err != nil {
		return time.Time{}
	}
	return ts
}
