// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package database

import (
	"context"
	"fmt"
)

// schemaStatements create the subsystem's own tables. Each statement is
// idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS backup_records (
		id UUID PRIMARY KEY,
		document_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL UNIQUE,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		metadata JSONB,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backup_records_created_at
		ON backup_records (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		type TEXT NOT NULL DEFAULT 'json',
		description TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT false,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS document_counters (
		prefix TEXT NOT NULL,
		period TEXT NOT NULL,
		counter BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (prefix, period)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		detail JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_occurred_at
		ON audit_log (occurred_at DESC)`,
}

// EnsureSchema creates the subsystem tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	return nil
}
