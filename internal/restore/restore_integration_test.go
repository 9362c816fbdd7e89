// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

//go:build integration

package restore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/config"
	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/testinfra"
)

type discardSink struct{}

func (discardSink) Write(string, string, string, string, map[string]any) {}

func startDatabase(t *testing.T) *database.DB {
	t.Helper()
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, pg) })

	db, err := database.Connect(ctx, config.DatabaseConfig{URL: pg.ConnString})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatal(err)
	}
	return db
}

func mustExec(t *testing.T, db *database.DB, sql string, args ...any) {
	t.Helper()
	if _, err := db.Pool().Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("%s: %v", sql, err)
	}
}

func countRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Pool().QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func takeSnapshotRecord(t *testing.T, db *database.DB, repo *backup.Repository) string {
	t.Helper()
	ctx := context.Background()

	snap, err := backup.BuildSnapshot(ctx, db.Pool(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "snapshot.json.gz")
	if err := backup.WriteSnapshot(snap, path); err != nil {
		t.Fatal(err)
	}

	b := &backup.Backup{
		ID:             uuid.NewString(),
		DocumentNumber: "BKP-202601-0001",
		Name:           "integration",
		Method:         backup.MethodJSONSnapshot,
		FileName:       filepath.Base(path),
		FilePath:       path,
		Status:         backup.StatusCompleted,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.Insert(ctx, b); err != nil {
		t.Fatal(err)
	}
	return b.ID
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()

	mustExec(t, db, `CREATE TABLE customers (id SERIAL PRIMARY KEY, name TEXT NOT NULL)`)
	mustExec(t, db, `CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		customer_id INT NOT NULL REFERENCES customers(id),
		total_cents BIGINT NOT NULL)`)
	mustExec(t, db, `INSERT INTO customers (name) VALUES ('alice'), ('bob')`)
	mustExec(t, db, `INSERT INTO orders (customer_id, total_cents) VALUES (1, 1999), (2, 4250)`)

	repo := backup.NewRepository(db.Pool())
	id := takeSnapshotRecord(t, db, repo)

	// Drift the live data away from the snapshot.
	mustExec(t, db, `DELETE FROM orders WHERE id = 2`)
	mustExec(t, db, `UPDATE customers SET name = 'mallory' WHERE id = 1`)
	mustExec(t, db, `INSERT INTO customers (name) VALUES ('eve')`)

	eng := NewEngine(db, repo, backup.NewDumpTool("", "", 0), discardSink{})
	result, err := eng.Restore(ctx, id, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if result.Method != backup.MethodJSONSnapshot {
		t.Errorf("method = %q, want %q", result.Method, backup.MethodJSONSnapshot)
	}

	if n := countRows(t, db, "customers"); n != 2 {
		t.Errorf("customers rows = %d, want 2", n)
	}
	if n := countRows(t, db, "orders"); n != 2 {
		t.Errorf("orders rows = %d, want 2", n)
	}
	var name string
	if err := db.Pool().QueryRow(ctx, `SELECT name FROM customers WHERE id = 1`).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "alice" {
		t.Errorf("customers[1].name = %q, want alice", name)
	}

	// Re-running the same restore is safe and converges to the same state.
	if _, err := eng.Restore(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, db, "customers"); n != 2 {
		t.Errorf("customers rows after re-run = %d, want 2", n)
	}
	if n := countRows(t, db, "orders"); n != 2 {
		t.Errorf("orders rows after re-run = %d, want 2", n)
	}
}

func TestSnapshotRestoreResolvesSelfReferenceByDeferral(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()

	mustExec(t, db, `CREATE TABLE staff (
		id INT PRIMARY KEY,
		name TEXT NOT NULL,
		mentor_id INT REFERENCES staff(id))`)
	// Row 1 points at row 2; captured in physical order, the loader hits
	// the FK on pass one and resolves it on pass two.
	mustExec(t, db, `INSERT INTO staff (id, name, mentor_id) VALUES (1, 'carol', NULL)`)
	mustExec(t, db, `INSERT INTO staff (id, name, mentor_id) VALUES (2, 'dave', NULL)`)
	mustExec(t, db, `UPDATE staff SET mentor_id = 2 WHERE id = 1`)

	repo := backup.NewRepository(db.Pool())
	id := takeSnapshotRecord(t, db, repo)

	mustExec(t, db, `UPDATE staff SET mentor_id = NULL WHERE id = 1`)
	mustExec(t, db, `DELETE FROM staff WHERE id = 2`)

	eng := NewEngine(db, repo, backup.NewDumpTool("", "", 0), discardSink{})
	if _, err := eng.Restore(ctx, id, "admin"); err != nil {
		t.Fatal(err)
	}

	var mentor *int
	if err := db.Pool().QueryRow(ctx, `SELECT mentor_id FROM staff WHERE id = 1`).Scan(&mentor); err != nil {
		t.Fatal(err)
	}
	if mentor == nil || *mentor != 2 {
		t.Errorf("staff[1].mentor_id = %v, want 2", mentor)
	}
}

func TestSnapshotRestoreToleratesSchemaDrift(t *testing.T) {
	db := startDatabase(t)
	ctx := context.Background()

	mustExec(t, db, `CREATE TABLE customers (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		legacy_code TEXT)`)
	mustExec(t, db, `INSERT INTO customers (name, legacy_code) VALUES ('alice', 'A-1')`)
	mustExec(t, db, `CREATE TABLE vanished (id INT PRIMARY KEY)`)
	mustExec(t, db, `INSERT INTO vanished VALUES (1)`)

	repo := backup.NewRepository(db.Pool())
	id := takeSnapshotRecord(t, db, repo)

	// Live schema drifts after the snapshot: one table disappears
	// entirely, one column is dropped.
	mustExec(t, db, `ALTER TABLE customers DROP COLUMN legacy_code`)
	mustExec(t, db, `DROP TABLE vanished`)

	eng := NewEngine(db, repo, backup.NewDumpTool("", "", 0), discardSink{})
	result, err := eng.Restore(ctx, id, "admin")
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, skipped := range result.SkippedTables {
		if skipped == "public.vanished" {
			found = true
		}
	}
	if !found {
		t.Errorf("SkippedTables = %v, want public.vanished listed", result.SkippedTables)
	}
	if n := countRows(t, db, "customers"); n != 1 {
		t.Errorf("customers rows = %d, want 1", n)
	}
	var name string
	if err := db.Pool().QueryRow(ctx, `SELECT name FROM customers WHERE id = 1`).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "alice" {
		t.Errorf("customers[1].name = %q, want alice", name)
	}
}
