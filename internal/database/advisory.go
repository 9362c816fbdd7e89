// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package database

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/stockroom-hq/stockroom/internal/logging"
)

// AdvisoryLockID derives a stable 64-bit advisory lock key from a job name.
func AdvisoryLockID(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64()) //nolint:gosec // intentional wraparound, keys only need stability
}

// TryAdvisoryLock attempts a session-scoped pg_try_advisory_lock on a
// dedicated connection. Session locks live and die with the session, so the
// connection is pinned from the pool and held until release is called.
// Returns (release, true, nil) on success and (nil, false, nil) when the
// lock is already held elsewhere.
func (db *DB) TryAdvisoryLock(ctx context.Context, name string) (func(), bool, error) {
	lockID := AdvisoryLockID(name)

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	release := func() {
		// Best effort: the lock falls away with the session anyway.
		var unlocked bool
		if err := conn.QueryRow(context.Background(), "SELECT pg_advisory_unlock($1)", lockID).Scan(&unlocked); err != nil {
			logging.Warn().Err(err).Str("lock", name).Msg("Advisory unlock failed")
		} else if !unlocked {
			logging.Warn().Str("lock", name).Msg("Advisory unlock reported lock not held")
		}
		conn.Release()
	}
	return release, true, nil
}
