// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/docnum"
)

type nopSink struct{}

func (nopSink) Write(string, string, string, string, map[string]any) {}

// recordingQuerier satisfies database.Querier for driving the engine
// without a live database. Exec statements are recorded in order; onExec
// lets a test observe world state at statement time.
type recordingQuerier struct {
	execs   []string
	onExec  func(sql string) error
	counter int64
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, strings.Join(strings.Fields(sql), " "))
	if q.onExec != nil {
		if err := q.onExec(sql); err != nil {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (q *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	q.counter++
	return counterRow{n: q.counter}
}

type counterRow struct{ n int64 }

func (r counterRow) Scan(dest ...any) error {
	if len(dest) == 1 {
		if p, ok := dest[0].(*int64); ok {
			*p = r.n
			return nil
		}
	}
	return errors.New("unexpected scan target")
}

// writeDumpStub creates a fake pg_dump that writes its --file argument.
func writeDumpStub(t *testing.T, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pg_dump")
	script := "#!/bin/sh\ntouch \"$5\"\nexit 0\n"
	if exitCode != 0 {
		script = "#!/bin/sh\nexit 1\n"
	}
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestEngine(q *recordingQuerier, dumpPath, dir string) *Engine {
	return NewEngine(
		database.New(nil, "postgres://stub"),
		NewRepository(q),
		docnum.New(q),
		NewDumpTool(dumpPath, "", time.Minute),
		nopSink{},
		dir,
	)
}

func TestCreateInsertsPendingRecordBeforeDump(t *testing.T) {
	dir := t.TempDir()
	q := &recordingQuerier{}
	q.onExec = func(sql string) error {
		if strings.Contains(sql, "INSERT INTO backup_records") {
			entries, err := os.ReadDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Error("artifact exists before the pending record was inserted")
			}
		}
		return nil
	}

	e := newTestEngine(q, writeDumpStub(t, 0), dir)
	b, err := e.Create(context.Background(), "nightly", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", b.Status, StatusCompleted)
	}
	if b.Method != MethodNativeDump {
		t.Errorf("method = %q, want %q", b.Method, MethodNativeDump)
	}

	var inserted, completed bool
	for _, sql := range q.execs {
		switch {
		case strings.Contains(sql, "INSERT INTO backup_records"):
			if completed {
				t.Error("pending insert recorded after completion")
			}
			inserted = true
		case strings.Contains(sql, "SET status"):
			if !inserted {
				t.Error("completion recorded before the pending insert")
			}
			completed = true
		}
	}
	if !inserted || !completed {
		t.Fatalf("missing lifecycle statements in %v", q.execs)
	}
}

func TestCreateDiscardsPendingRecordWhenBothPathsFail(t *testing.T) {
	dir := t.TempDir()
	q := &recordingQuerier{}
	q.onExec = func(sql string) error {
		// The fallback's artifact repoint fails, aborting the run.
		if strings.Contains(sql, "SET method") {
			return errors.New("connection reset")
		}
		return nil
	}

	e := newTestEngine(q, writeDumpStub(t, 1), dir)
	if _, err := e.Create(context.Background(), "nightly", "admin"); err == nil {
		t.Fatal("expected Create to fail")
	}

	var deleted bool
	for _, sql := range q.execs {
		if strings.Contains(sql, "DELETE FROM backup_records") {
			deleted = true
		}
	}
	if !deleted {
		t.Errorf("failed run left its pending record: %v", q.execs)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("failed run left artifacts: %v", entries)
	}
}
