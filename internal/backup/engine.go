// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/docnum"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// AuditSink records who triggered what. Writes are fire-and-forget; the
// engine never fails an operation over an audit problem.
type AuditSink interface {
	Write(action, entity, entityID, actor string, detail map[string]any)
}

// Engine creates, lists, deletes and prunes backups.
type Engine struct {
	db    *database.DB
	repo  *Repository
	docs  *docnum.Allocator
	tool  *DumpTool
	audit AuditSink
	dir   string
}

// NewEngine builds the backup engine. dir is the backup artifact directory.
func NewEngine(db *database.DB, repo *Repository, docs *docnum.Allocator, tool *DumpTool, audit AuditSink, dir string) *Engine {
	return &Engine{db: db, repo: repo, docs: docs, tool: tool, audit: audit, dir: dir}
}

// Dir returns the backup artifact directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Create produces a new backup artifact and its metadata record. The
// record is inserted in pending status before any artifact work, so a
// long-running dump is observable as an in-flight backup. The native dump
// tool is tried first; any dump failure silently falls back to the JSON
// snapshot path, repointing the record at the snapshot artifact. A failure
// of both paths removes the dangling pending row.
func (e *Engine) Create(ctx context.Context, name, createdBy string) (*Backup, error) {
	start := time.Now()
	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		metrics.BackupsTotal.WithLabelValues("none", "error").Inc()
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	number, err := e.docs.Next(ctx, DocumentPrefix, start)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("none", "error").Inc()
		return nil, err
	}

	stamp := start.UTC().Format("20060102-150405")
	fileName := fmt.Sprintf("%s-%s.dump", number, stamp)
	b := &Backup{
		ID:             uuid.NewString(),
		DocumentNumber: number,
		Name:           name,
		Method:         MethodNativeDump,
		FileName:       fileName,
		FilePath:       filepath.Join(e.dir, fileName),
		Status:         StatusPending,
		CreatedBy:      createdBy,
		CreatedAt:      start,
	}
	if err := e.repo.Insert(ctx, b); err != nil {
		metrics.BackupsTotal.WithLabelValues("none", "error").Inc()
		return nil, err
	}

	if err := e.writeNative(ctx, b); err != nil {
		logging.Warn().Err(err).Msg("Native dump failed, falling back to JSON snapshot")
		err = e.fallbackToSnapshot(ctx, b, stamp, start)
		if err != nil {
			e.discardPending(ctx, b)
			metrics.BackupsTotal.WithLabelValues(MethodJSONSnapshot, "error").Inc()
			return nil, err
		}
	}

	if err := e.finalize(ctx, b); err != nil {
		e.discardPending(ctx, b)
		metrics.BackupsTotal.WithLabelValues(b.Method, "error").Inc()
		return nil, err
	}

	metrics.BackupsTotal.WithLabelValues(b.Method, "success").Inc()
	metrics.BackupDuration.Observe(time.Since(start).Seconds())
	metrics.BackupSizeBytes.Set(float64(b.SizeBytes))
	e.audit.Write("backup.create", "backup", b.ID, createdBy, map[string]any{
		"documentNumber": b.DocumentNumber,
		"method":         b.Method,
		"sizeBytes":      b.SizeBytes,
	})
	logging.Info().
		Str("backup_id", b.ID).
		Str("method", b.Method).
		Int64("size_bytes", b.SizeBytes).
		Msg("Backup created")
	return b, nil
}

func (e *Engine) writeNative(ctx context.Context, b *Backup) error {
	if err := e.tool.Dump(ctx, e.db.ConnString(), b.FilePath); err != nil {
		os.Remove(b.FilePath)
		return err
	}
	return nil
}

// fallbackToSnapshot repoints the pending record at a snapshot artifact
// and writes it.
func (e *Engine) fallbackToSnapshot(ctx context.Context, b *Backup, stamp string, start time.Time) error {
	b.Method = MethodJSONSnapshot
	b.FileName = fmt.Sprintf("%s-%s.json.gz", b.DocumentNumber, stamp)
	b.FilePath = filepath.Join(e.dir, b.FileName)
	if err := e.repo.UpdateArtifact(ctx, b.ID, b.Method, b.FileName, b.FilePath); err != nil {
		return err
	}

	snap, err := BuildSnapshot(ctx, e.db.Pool(), start)
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}
	return WriteSnapshot(snap, b.FilePath)
}

// finalize measures the artifact and marks the record completed.
func (e *Engine) finalize(ctx context.Context, b *Backup) error {
	info, err := os.Stat(b.FilePath)
	if err != nil {
		return fmt.Errorf("measuring backup artifact: %w", err)
	}
	completedAt := time.Now().UTC()
	if err := e.repo.Complete(ctx, b.ID, info.Size(), completedAt); err != nil {
		return err
	}

	b.SizeBytes = info.Size()
	b.Status = StatusCompleted
	b.CompletedAt = &completedAt
	return nil
}

// discardPending removes the pending row of a failed run so no permanent
// record points at an artifact that was never produced.
func (e *Engine) discardPending(ctx context.Context, b *Backup) {
	os.Remove(b.FilePath)
	if err := e.repo.Delete(ctx, b.ID); err != nil && !errors.Is(err, ErrNotFound) {
		logging.Warn().Err(err).Str("backup_id", b.ID).Msg("Could not remove pending record of failed backup")
	}
}

// List returns all backups newest-first.
func (e *Engine) List(ctx context.Context) ([]*Backup, error) {
	return e.repo.List(ctx)
}

// Get returns one backup or ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (*Backup, error) {
	return e.repo.FindByID(ctx, id)
}

// Delete removes a backup's metadata and best-effort unlinks its file.
// A file that cannot be removed is logged and counted, never an error;
// the retention sweep tolerates orphaned files.
func (e *Engine) Delete(ctx context.Context, id, actor string) error {
	b, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := e.repo.Delete(ctx, id); err != nil {
		return err
	}
	e.unlinkArtifact(b)
	e.audit.Write("backup.delete", "backup", b.ID, actor, map[string]any{
		"documentNumber": b.DocumentNumber,
		"fileName":       b.FileName,
	})
	return nil
}

func (e *Engine) unlinkArtifact(b *Backup) {
	if err := os.Remove(b.FilePath); err != nil && !os.IsNotExist(err) {
		metrics.NonCriticalFailures.WithLabelValues("file_unlink").Inc()
		logging.Warn().Err(err).Str("path", b.FilePath).Msg("Backup file unlink failed")
	}
}
