// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execRecorder struct {
	sql  string
	args []any
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql = sql
	r.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestUpsertByKeyCarriesDocumentAttributes(t *testing.T) {
	rec := &execRecorder{}
	store := NewStore(rec)

	if err := store.UpsertByKey(context.Background(), KeyBackupSchedule, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	for _, col := range []string{"type", "description", "is_public"} {
		if !strings.Contains(rec.sql, col) {
			t.Errorf("upsert statement missing %q column:\n%s", col, rec.sql)
		}
	}
	if len(rec.args) != 3 {
		t.Fatalf("args = %v, want key, value, description", rec.args)
	}
	if rec.args[2] != "Automatic database backup schedule" {
		t.Errorf("description arg = %v", rec.args[2])
	}
}

func TestDescribeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{KeyBackupSchedule, "Automatic database backup schedule"},
		{KeyHealthCheckConfig, "Backup health check schedule"},
		{"some.other.key", ""},
	}
	for _, tt := range tests {
		if got := describeKey(tt.key); got != tt.want {
			t.Errorf("describeKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
