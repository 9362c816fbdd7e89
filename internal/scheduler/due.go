// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package scheduler decides when recurring backup and health-check jobs
// run and drives them from a background timer. The due-check is pure local
// computation over an already-loaded schedule; every actual run first
// passes through the distributed lock manager.
package scheduler

import (
	"time"

	"github.com/stockroom-hq/stockroom/internal/settings"
)

// slotKeyLayout renders a minute-resolution key that compares
// lexicographically in chronological order.
const slotKeyLayout = "2006-01-02 15:04"

// IsDue reports whether a scheduled run is due at now. The decision is
// keyed on minute slots in the schedule's time zone: today's slot is the
// schedule date plus the configured HH:MM, and a run is due once now has
// reached that slot, the weekday matches (weekly cadence only), and the
// last run happened in an earlier slot. Comparing the last run by its own
// slot key makes the check idempotent within a minute and robust to the
// timer firing more often than once per minute.
func IsDue(now time.Time, sched settings.Schedule) bool {
	loc := sched.Location()
	zoned := now.In(loc)

	slotKey := zoned.Format("2006-01-02") + " " + sched.Time
	nowKey := zoned.Format(slotKeyLayout)
	if nowKey < slotKey {
		return false
	}
	if sched.Frequency == settings.FrequencyWeekly && int(zoned.Weekday()) != sched.DayOfWeek {
		return false
	}

	last := sched.LastRun()
	if last.IsZero() {
		return true
	}
	return last.In(loc).Format(slotKeyLayout) < slotKey
}
