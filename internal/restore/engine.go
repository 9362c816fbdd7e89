// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package restore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/docnum"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// PostgreSQL error codes the loader reacts to.
const (
	pgcodeForeignKeyViolation = "23503"
)

// internalTables are never loaded from a snapshot: migration bookkeeping
// plus the backup metadata table itself, which must describe the running
// restore rather than be overwritten by it.
var internalTables = map[string]bool{
	"public.schema_migrations":     true,
	"public.goose_db_version":      true,
	"public.flyway_schema_history": true,
	"public.backup_records":        true,
}

// Result reports what a restore accomplished.
type Result struct {
	Method         string   `json:"method"`
	RestoredTables int      `json:"restoredTables"`
	Rows           int      `json:"rows"`
	SkippedTables  []string `json:"skippedTables,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Engine restores backup artifacts.
type Engine struct {
	db    *database.DB
	repo  *backup.Repository
	tool  *backup.DumpTool
	audit backup.AuditSink
}

// NewEngine builds the restore engine.
func NewEngine(db *database.DB, repo *backup.Repository, tool *backup.DumpTool, audit backup.AuditSink) *Engine {
	return &Engine{db: db, repo: repo, tool: tool, audit: audit}
}

// Restore replays the backup identified by id into the live database.
// Native dumps have no fallback: a tool failure is fatal and reported.
func (e *Engine) Restore(ctx context.Context, id, actor string) (*Result, error) {
	b, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *Result
	switch {
	case b.Method == backup.MethodNativeDump || strings.HasSuffix(b.FileName, ".dump"):
		result, err = e.restoreNative(ctx, b)
	default:
		result, err = e.restoreSnapshot(ctx, b)
	}
	if err != nil {
		metrics.RestoresTotal.WithLabelValues(b.Method, "error").Inc()
		return nil, err
	}

	metrics.RestoresTotal.WithLabelValues(b.Method, "success").Inc()
	metrics.RestoreDuration.Observe(time.Since(start).Seconds())
	e.audit.Write("backup.restore", "backup", b.ID, actor, map[string]any{
		"documentNumber": b.DocumentNumber,
		"method":         result.Method,
		"restoredTables": result.RestoredTables,
		"rows":           result.Rows,
	})
	logging.Info().
		Str("backup_id", b.ID).
		Str("method", result.Method).
		Int("tables", result.RestoredTables).
		Int("rows", result.Rows).
		Msg("Restore completed")
	return result, nil
}

// restoreNative shells out to the external restore tool. The tool replaces
// the prior database state in one call; there is no partial state to manage.
func (e *Engine) restoreNative(ctx context.Context, b *backup.Backup) (*Result, error) {
	if err := e.tool.Restore(ctx, e.db.ConnString(), b.FilePath); err != nil {
		return nil, fmt.Errorf("native restore: %w", err)
	}
	return &Result{Method: backup.MethodNativeDump}, nil
}

// restoreSnapshot runs the dependency-ordered load inside one transaction.
func (e *Engine) restoreSnapshot(ctx context.Context, b *backup.Backup) (*Result, error) {
	snap, err := backup.ReadSnapshot(b.FilePath)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.Pool().Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning restore transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	result, err := e.loadSnapshot(ctx, tx, snap)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing restore: %w", err)
	}

	// Post-commit bookkeeping is best effort.
	e.reseedDocumentNumbers(ctx)
	return result, nil
}

func (e *Engine) loadSnapshot(ctx context.Context, tx pgx.Tx, snap *backup.Snapshot) (*Result, error) {
	result := &Result{Method: backup.MethodJSONSnapshot}

	// Resolve each snapshot table against the live catalog. Tables whose
	// target no longer exists are skipped, not fatal.
	tables := make([]*tableTarget, 0, len(snap.Tables))
	names := make([]string, 0, len(snap.Tables))
	for name := range snap.Tables {
		if internalTables[name] {
			continue
		}
		target, err := resolveTarget(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if target == nil {
			result.SkippedTables = append(result.SkippedTables, name)
			continue
		}
		tables = append(tables, target)
		names = append(names, name)
	}
	sort.Strings(result.SkippedTables)

	edges, err := dependencyEdges(ctx, tx, names)
	if err != nil {
		return nil, err
	}
	ordered, remainder := TopoSort(names, edges)
	order := append(ordered, remainder...)

	targets := make(map[string]*tableTarget, len(tables))
	for _, t := range tables {
		targets[t.name] = t
	}

	if err := truncateTables(ctx, tx, order, result); err != nil {
		return nil, err
	}

	insert := func(ctx context.Context, table string, row map[string]any) error {
		return insertRow(ctx, tx, targets[table], row)
	}
	rows, err := LoadPasses(ctx, order, snap.Tables, insert, isForeignKeyViolation)
	if err != nil {
		return nil, fmt.Errorf("RESTORE_FAILED: %w", err)
	}
	result.Rows = rows
	result.RestoredTables = len(tables)
	metrics.RestoreRowsLoaded.Add(float64(rows))

	for _, t := range tables {
		if len(t.pkCols) == 0 && len(snap.Tables[t.name]) > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s has no primary key; repeated restores may duplicate its rows", t.name))
		}
	}
	sort.Strings(result.Warnings)

	resetSequences(ctx, tx, names)
	return result, nil
}

// tableTarget is a snapshot table resolved against the live schema.
type tableTarget struct {
	name    string
	quoted  string
	cols    map[string]bool
	colList []string // live ordinal order
	pkCols  []string
}

func resolveTarget(ctx context.Context, tx pgx.Tx, name string) (*tableTarget, error) {
	quoted, err := database.QuoteQualified(name)
	if err != nil {
		return nil, fmt.Errorf("snapshot table %q: %w", name, err)
	}
	cols, err := database.TableColumns(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, nil // target no longer exists
	}
	pk, err := database.PrimaryKeyColumns(ctx, tx, name)
	if err != nil {
		return nil, err
	}

	colSet := make(map[string]bool, len(cols))
	for _, c := range cols {
		colSet[c] = true
	}
	return &tableTarget{name: name, quoted: quoted, cols: colSet, colList: cols, pkCols: pk}, nil
}

// dependencyEdges converts the catalog's child-references-parent rows into
// parent-loads-before-child ordering edges.
func dependencyEdges(ctx context.Context, tx pgx.Tx, names []string) ([]Edge, error) {
	fks, err := database.ForeignKeyEdges(ctx, tx, names)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(fks))
	for _, fk := range fks {
		edges = append(edges, Edge{From: fk.To, To: fk.From})
	}
	return edges, nil
}

// truncateTables clears the target tables: one cascading truncate across
// all of them, then per-table truncation in reverse load order, then plain
// deletes. Every fallback step sits in its own savepoint so a single
// table's failure cannot poison the transaction.
func truncateTables(ctx context.Context, tx pgx.Tx, order []string, result *Result) error {
	if len(order) == 0 {
		return nil
	}

	quoted := make([]string, 0, len(order))
	for _, name := range order {
		q, err := database.QuoteQualified(name)
		if err != nil {
			return err
		}
		quoted = append(quoted, q)
	}

	all := "TRUNCATE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE"
	if err := inSavepoint(ctx, tx, "sp_truncate_all", all); err == nil {
		return nil
	}

	for i := len(order) - 1; i >= 0; i-- {
		q := quoted[i]
		if err := inSavepoint(ctx, tx, "sp_truncate", "TRUNCATE "+q+" RESTART IDENTITY CASCADE"); err == nil {
			continue
		}
		if err := inSavepoint(ctx, tx, "sp_delete", "DELETE FROM "+q); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("could not clear %s before load: %v", order[i], err))
		}
	}
	return nil
}

// inSavepoint runs one statement inside a savepoint, rolling back to it on
// failure so the enclosing transaction stays usable.
func inSavepoint(ctx context.Context, tx pgx.Tx, name, stmt string, args ...any) error {
	if _, err := tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("savepoint rollback failed: %w (after %w)", rbErr, err)
		}
		return err
	}
	_, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// insertRow writes one snapshot row, intersecting its columns with the
// live table so schema drift is tolerated rather than rejected. When every
// primary-key column is present the write is an upsert; otherwise a plain
// insert. Runs inside a savepoint so a foreign-key failure leaves the
// transaction intact for the deferral pass.
func insertRow(ctx context.Context, tx pgx.Tx, target *tableTarget, row map[string]any) error {
	cols := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, c := range target.colList {
		if v, ok := row[c]; ok {
			cols = append(cols, c)
			args = append(args, v)
		}
	}
	if len(cols) == 0 {
		return nil // nothing the live table can accept
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(target.quoted)
	sb.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		q, err := database.QuoteIdentifier(c)
		if err != nil {
			return err
		}
		sb.WriteString(q)
	}
	sb.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", i+1)
	}
	sb.WriteString(")")

	if clause, ok := upsertClause(target, cols); ok {
		sb.WriteString(clause)
	}

	if _, err := tx.Exec(ctx, "SAVEPOINT sp_row"); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, sb.String(), args...)
	if err != nil {
		if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT sp_row"); rbErr != nil {
			return fmt.Errorf("savepoint rollback failed: %w (after %w)", rbErr, err)
		}
		if isForeignKeyViolation(err) {
			metrics.RestoreDeferredRows.Inc()
		}
		return err
	}
	_, err = tx.Exec(ctx, "RELEASE SAVEPOINT sp_row")
	return err
}

// upsertClause builds the ON CONFLICT clause when all primary-key columns
// are present in the row.
func upsertClause(target *tableTarget, cols []string) (string, bool) {
	if len(target.pkCols) == 0 {
		return "", false
	}
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	for _, pk := range target.pkCols {
		if !present[pk] {
			return "", false
		}
	}
	isPK := make(map[string]bool, len(target.pkCols))
	quotedPK := make([]string, 0, len(target.pkCols))
	for _, pk := range target.pkCols {
		isPK[pk] = true
		q, err := database.QuoteIdentifier(pk)
		if err != nil {
			return "", false
		}
		quotedPK = append(quotedPK, q)
	}

	var updates []string
	for _, c := range cols {
		if isPK[c] {
			continue
		}
		q, err := database.QuoteIdentifier(c)
		if err != nil {
			return "", false
		}
		updates = append(updates, q+" = EXCLUDED."+q)
	}

	clause := " ON CONFLICT (" + strings.Join(quotedPK, ", ") + ")"
	if len(updates) == 0 {
		return clause + " DO NOTHING", true
	}
	return clause + " DO UPDATE SET " + strings.Join(updates, ", "), true
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgcodeForeignKeyViolation
}

// resetSequences sets each sequence-backed column to max(column)+1 so new
// application inserts do not collide with restored values. Failures are
// swallowed per column.
func resetSequences(ctx context.Context, tx pgx.Tx, names []string) {
	serials, err := database.SerialColumns(ctx, tx, names)
	if err != nil {
		metrics.NonCriticalFailures.WithLabelValues("sequence_reset").Inc()
		logging.Warn().Err(err).Msg("Sequence discovery failed after restore")
		return
	}

	for _, sc := range serials {
		quoted, err := database.QuoteQualified(sc.Table)
		if err != nil {
			continue
		}
		qCol, err := database.QuoteIdentifier(sc.Column)
		if err != nil {
			continue
		}
		stmt := fmt.Sprintf("SELECT setval($1, COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)", qCol, quoted)
		if err := inSavepoint(ctx, tx, "sp_seq", stmt, sc.Sequence); err != nil {
			metrics.NonCriticalFailures.WithLabelValues("sequence_reset").Inc()
			logging.Warn().Err(err).
				Str("sequence", sc.Sequence).
				Msg("Sequence reset failed after restore")
		}
	}
}

// reseedDocumentNumbers bumps the backup document counter past the highest
// stored document number so post-restore backups do not collide. The
// maximum is taken numerically per (prefix, period): a lexicographic sort
// would misorder counters of different widths. Best effort, never fatal.
func (e *Engine) reseedDocumentNumbers(ctx context.Context) {
	rows, err := e.db.Pool().Query(ctx, `SELECT document_number FROM backup_records`)
	if err != nil {
		metrics.NonCriticalFailures.WithLabelValues("docnum_reseed").Inc()
		logging.Warn().Err(err).Msg("Document number reseed lookup failed")
		return
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			metrics.NonCriticalFailures.WithLabelValues("docnum_reseed").Inc()
			logging.Warn().Err(err).Msg("Document number reseed scan failed")
			return
		}
		numbers = append(numbers, number)
	}
	if rows.Err() != nil {
		metrics.NonCriticalFailures.WithLabelValues("docnum_reseed").Inc()
		logging.Warn().Err(rows.Err()).Msg("Document number reseed lookup failed")
		return
	}

	alloc := docnum.New(e.db.Pool())
	for period, counter := range maxCountersByPeriod(backup.DocumentPrefix, numbers) {
		if err := alloc.Reseed(ctx, backup.DocumentPrefix, period, counter); err != nil {
			metrics.NonCriticalFailures.WithLabelValues("docnum_reseed").Inc()
			logging.Warn().Err(err).Str("period", period).Msg("Document number reseed failed")
		}
	}
}

// maxCountersByPeriod extracts the numeric maximum counter per period from
// PREFIX-PERIOD-COUNTER document numbers, skipping malformed entries and
// other prefixes.
func maxCountersByPeriod(prefix string, numbers []string) map[string]int64 {
	maxima := make(map[string]int64)
	for _, number := range numbers {
		parts := strings.SplitN(number, "-", 3)
		if len(parts) != 3 || parts[0] != prefix {
			continue
		}
		counter, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || counter < 0 {
			continue
		}
		if counter > maxima[parts[1]] {
			maxima[parts[1]] = counter
		}
	}
	return maxima
}
