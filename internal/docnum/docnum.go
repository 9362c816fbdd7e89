// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package docnum issues gap-free, monotonically increasing document numbers
// per (prefix, year-month) pair, e.g. BKP-202609-0001. The counter row is
// upserted atomically so concurrent allocators in the same transaction
// scope serialize on the row lock and never observe the same value.
package docnum

import (
	"context"
	"fmt"
	"time"

	"github.com/stockroom-hq/stockroom/internal/database"
)

// Allocator hands out document numbers backed by the document_counters table.
type Allocator struct {
	q database.Querier
}

// New returns an Allocator using the given querier, which may be a pool or
// an open transaction when allocation must be atomic with other writes.
func New(q database.Querier) *Allocator {
	return &Allocator{q: q}
}

// Next allocates the next number for prefix in the month of now and formats
// it as PREFIX-YYYYMM-NNNN. Counters restart at 1 each month.
func (a *Allocator) Next(ctx context.Context, prefix string, now time.Time) (string, error) {
	period := now.Format("200601")

	var counter int64
	err := a.q.QueryRow(ctx, `
		INSERT INTO document_counters (prefix, period, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, period)
		DO UPDATE SET counter = document_counters.counter + 1
		RETURNING counter`, prefix, period).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("allocating document number for %s-%s: %w", prefix, period, err)
	}

	return Format(prefix, period, counter), nil
}

// Reseed forces the counter for (prefix, period) to at least value. Used
// after a restore so future allocations do not collide with restored
// document numbers.
func (a *Allocator) Reseed(ctx context.Context, prefix, period string, value int64) error {
	_, err := a.q.Exec(ctx, `
		INSERT INTO document_counters (prefix, period, counter)
		VALUES ($1, $2, $3)
		ON CONFLICT (prefix, period)
		DO UPDATE SET counter = GREATEST(document_counters.counter, EXCLUDED.counter)`,
		prefix, period, value)
	if err != nil {
		return fmt.Errorf("reseeding counter %s-%s: %w", prefix, period, err)
	}
	return nil
}

// Format renders a document number as PREFIX-YYYYMM-NNNN, widening the
// counter field past four digits when needed.
func Format(prefix, period string, counter int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, period, counter)
}
