// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"time"

	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// SelectExpired returns the records to prune: the union of everything
// beyond position keepLast in newest-first order and everything older than
// maxAgeDays. A zero keepLast keeps nothing by count; a zero maxAgeDays
// disables the age rule. Pure so retention policy is testable without a
// database.
func SelectExpired(backups []*Backup, keepLast, maxAgeDays int, now time.Time) []*Backup {
	expired := make([]*Backup, 0)
	seen := make(map[string]bool)

	for i, b := range backups {
		if i >= keepLast {
			expired = append(expired, b)
			seen[b.ID] = true
		}
	}
	if maxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -maxAgeDays)
		for _, b := range backups {
			if !seen[b.ID] && b.CreatedAt.Before(cutoff) {
				expired = append(expired, b)
				seen[b.ID] = true
			}
		}
	}
	return expired
}

// Retention prunes backups per the schedule's policy. Each expired
// record's metadata row is deleted and its file attempted for removal
// exactly once. Returns the number of pruned records.
func (e *Engine) Retention(ctx context.Context, keepLast, maxAgeDays int) (int, error) {
	backups, err := e.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	expired := SelectExpired(backups, keepLast, maxAgeDays, time.Now())
	pruned := 0
	for _, b := range expired {
		if err := e.repo.Delete(ctx, b.ID); err != nil {
			logging.Warn().Err(err).Str("backup_id", b.ID).Msg("Retention delete failed")
			continue
		}
		e.unlinkArtifact(b)
		pruned++
	}
	if pruned > 0 {
		metrics.BackupsPruned.Add(float64(pruned))
		logging.Info().Int("pruned", pruned).Int("keep_last", keepLast).Msg("Retention pruning complete")
	}
	return pruned, nil
}
