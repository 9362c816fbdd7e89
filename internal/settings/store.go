// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package settings stores singleton JSON configuration documents under
// well-known keys, most importantly the backup schedule.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stockroom-hq/stockroom/internal/database"
)

// ErrNotFound is returned when no document exists under a key.
var ErrNotFound = errors.New("setting not found")

// Store reads and writes settings documents. Writes are last-write-wins:
// the schedule is a singleton document mutated by admins and the scheduler,
// and the scheduler only patches its own bookkeeping fields.
type Store struct {
	q database.Querier
}

// NewStore returns a Store backed by the settings table.
func NewStore(q database.Querier) *Store {
	return &Store{q: q}
}

// FindByKey returns the raw JSON document under key, or ErrNotFound.
func (s *Store) FindByKey(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.q.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading setting %q: %w", key, err)
	}
	return value, nil
}

// UpsertByKey stores value under key, replacing any existing document.
// Every document this subsystem writes is a private JSON blob, so the
// type/description/is_public attributes are fixed at insert and a
// conflicting write only replaces the value.
func (s *Store) UpsertByKey(ctx context.Context, key string, value []byte) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO settings (key, value, type, description, is_public, updated_at)
		VALUES ($1, $2, 'json', $3, false, now())
		ON CONFLICT (key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value, describeKey(key))
	if err != nil {
		return fmt.Errorf("storing setting %q: %w", key, err)
	}
	return nil
}

// describeKey supplies the human-readable description stored next to a
// document. Unknown keys get an empty description rather than an error.
func describeKey(key string) string {
	switch key {
	case KeyBackupSchedule:
		return "Automatic database backup schedule"
	case KeyHealthCheckConfig:
		return "Backup health check schedule"
	default:
		return ""
	}
}
