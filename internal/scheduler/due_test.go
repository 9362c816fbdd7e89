// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package scheduler

import (
	"testing"
	"time"

	"github.com/stockroom-hq/stockroom/internal/settings"
)

func dailySchedule(at, zone string) settings.Schedule {
	s := settings.DefaultSchedule()
	s.Enabled = true
	s.Time = at
	s.TimeZone = zone
	return s
}

func TestIsDueDaily(t *testing.T) {
	tests := []struct {
		name      string
		now       string
		schedTime string
		lastRun   string
		want      bool
	}{
		{name: "before slot", now: "2024-01-01T01:59:00Z", schedTime: "02:00", want: false},
		{name: "exactly at slot, never ran", now: "2024-01-01T02:00:00Z", schedTime: "02:00", want: true},
		{name: "past slot, never ran", now: "2024-01-01T02:01:00Z", schedTime: "02:00", want: true},
		{name: "already ran this slot", now: "2024-01-01T02:01:00Z", schedTime: "02:00", lastRun: "2024-01-01T02:01:00Z", want: false},
		{name: "ran later same day, same slot", now: "2024-01-01T17:30:00Z", schedTime: "02:00", lastRun: "2024-01-01T02:01:00Z", want: false},
		{name: "ran yesterday", now: "2024-01-02T02:00:00Z", schedTime: "02:00", lastRun: "2024-01-01T02:01:00Z", want: true},
		{name: "time moved later same day re-triggers", now: "2024-01-01T15:00:00Z", schedTime: "14:00", lastRun: "2024-01-01T02:01:00Z", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := dailySchedule(tt.schedTime, "UTC")
			sched.LastRunAt = tt.lastRun
			now, err := time.Parse(time.RFC3339, tt.now)
			if err != nil {
				t.Fatal(err)
			}
			if got := IsDue(now, sched); got != tt.want {
				t.Errorf("IsDue(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestIsDueIdempotentForFixedNow(t *testing.T) {
	sched := dailySchedule("02:00", "UTC")
	now := time.Date(2024, 1, 1, 2, 5, 0, 0, time.UTC)

	first := IsDue(now, sched)
	second := IsDue(now, sched)
	if first != second {
		t.Errorf("IsDue not idempotent: %v then %v", first, second)
	}
	if !first {
		t.Fatal("expected due before recording a run")
	}

	sched.LastRunAt = now.Format(time.RFC3339)
	if IsDue(now, sched) {
		t.Error("IsDue must be false at the same instant after recording the run")
	}
}

func TestIsDueWeekly(t *testing.T) {
	sched := dailySchedule("02:00", "UTC")
	sched.Frequency = settings.FrequencyWeekly
	sched.DayOfWeek = 1 // Monday

	monday := time.Date(2024, 1, 1, 2, 30, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	if !IsDue(monday, sched) {
		t.Error("expected due on the configured weekday")
	}
	if IsDue(tuesday, sched) {
		t.Error("expected not due on other weekdays")
	}
}

func TestIsDueRespectsTimeZone(t *testing.T) {
	// 02:00 in New York is 07:00 UTC (EST). At 06:59 UTC the local slot
	// has not arrived; at 07:00 UTC it has.
	sched := dailySchedule("02:00", "America/New_York")

	before := time.Date(2024, 1, 15, 6, 59, 0, 0, time.UTC)
	at := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)

	if IsDue(before, sched) {
		t.Error("due before the zoned slot arrived")
	}
	if !IsDue(at, sched) {
		t.Error("not due once the zoned slot arrived")
	}
}

func TestIsDueLastRunComparedInScheduleZone(t *testing.T) {
	// A run recorded at 07:01 UTC is 02:01 in New York, inside the same
	// local slot; the check must not consider the schedule due again.
	sched := dailySchedule("02:00", "America/New_York")
	sched.LastRunAt = "2024-01-15T07:01:00Z"

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if IsDue(now, sched) {
		t.Error("same zoned slot must not re-trigger")
	}
}
