// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package restore

import (
	"context"
	"fmt"
)

// InsertFunc attempts one row for one table. A deferrable failure (a
// foreign-key violation) means "not yet"; anything else fails the table's
// row outright.
type InsertFunc func(ctx context.Context, table string, row map[string]any) error

// tableWork tracks a table's rows still waiting to be inserted.
type tableWork struct {
	table string
	rows  []map[string]any
}

// LoadPasses drives the multi-pass insert-with-deferral loop over an
// explicit table ordering. Rows whose insert fails the deferrable check
// are retried on the next pass; a full pass with zero progress aborts with
// the most recent deferrable error as the cause. Returns total rows
// inserted. Pure control flow: all SQL lives behind insert and deferrable.
func LoadPasses(ctx context.Context, ordering []string, rows map[string][]map[string]any, insert InsertFunc, deferrable func(error) bool) (int, error) {
	pending := make([]tableWork, 0, len(ordering))
	for _, table := range ordering {
		if len(rows[table]) > 0 {
			pending = append(pending, tableWork{table: table, rows: rows[table]})
		}
	}

	total := 0
	var lastDeferred error
	for len(pending) > 0 {
		progressed := 0
		next := pending[:0]

		for _, work := range pending {
			var deferred []map[string]any
			for _, row := range work.rows {
				if err := ctx.Err(); err != nil {
					return total, err
				}
				err := insert(ctx, work.table, row)
				switch {
				case err == nil:
					total++
					progressed++
				case deferrable(err):
					lastDeferred = err
					deferred = append(deferred, row)
				default:
					return total, fmt.Errorf("loading %s: %w", work.table, err)
				}
			}
			if len(deferred) > 0 {
				next = append(next, tableWork{table: work.table, rows: deferred})
			}
		}

		if progressed == 0 {
			return total, fmt.Errorf("restore stalled with unresolvable foreign keys: %w", lastDeferred)
		}
		pending = next
	}
	return total, nil
}
