// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/stockroom-hq/stockroom/internal/database"
)

// ErrNotFound is returned for operations on a backup id with no record.
var ErrNotFound = errors.New("backup not found")

// Repository persists backup metadata rows.
type Repository struct {
	q database.Querier
}

// NewRepository returns a Repository over the backup_records table.
func NewRepository(q database.Querier) *Repository {
	return &Repository{q: q}
}

const backupColumns = `id, document_number, name, method, file_name, file_path,
	size_bytes, status, metadata, created_by, created_at, completed_at`

// Insert stores a new record, normally in pending status.
func (r *Repository) Insert(ctx context.Context, b *Backup) error {
	meta, err := encodeMetadata(b.Metadata)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO backup_records
			(id, document_number, name, method, file_name, file_path,
			 size_bytes, status, metadata, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`,
		b.ID, b.DocumentNumber, b.Name, b.Method, b.FileName, b.FilePath,
		b.SizeBytes, b.Status, meta, b.CreatedBy, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting backup record: %w", err)
	}
	return nil
}

// UpdateArtifact repoints a pending record at a different artifact. Used
// when the native dump path falls back to a snapshot after the record has
// already been inserted.
func (r *Repository) UpdateArtifact(ctx context.Context, id, method, fileName, filePath string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE backup_records
		SET method = $2, file_name = $3, file_path = $4
		WHERE id = $1`,
		id, method, fileName, filePath)
	if err != nil {
		return fmt.Errorf("updating backup artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete transitions a record to completed with its final size.
func (r *Repository) Complete(ctx context.Context, id string, sizeBytes int64, completedAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE backup_records
		SET status = $2, size_bytes = $3, completed_at = $4
		WHERE id = $1`,
		id, StatusCompleted, sizeBytes, completedAt)
	if err != nil {
		return fmt.Errorf("completing backup record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindByID returns a single record or ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id string) (*Backup, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+backupColumns+` FROM backup_records WHERE id = $1`, id)
	b, err := scanBackup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading backup record: %w", err)
	}
	return b, nil
}

// List returns all records ordered newest-first.
func (r *Repository) List(ctx context.Context) ([]*Backup, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+backupColumns+` FROM backup_records ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing backup records: %w", err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning backup record: %w", err)
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

// Delete removes a metadata row. The caller handles file unlinking.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM backup_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting backup record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding backup metadata: %w", err)
	}
	return raw, nil
}

func scanBackup(row pgx.Row) (*Backup, error) {
	var (
		b         Backup
		meta      []byte
		createdBy *string
	)
	err := row.Scan(&b.ID, &b.DocumentNumber, &b.Name, &b.Method, &b.FileName,
		&b.FilePath, &b.SizeBytes, &b.Status, &meta, &createdBy,
		&b.CreatedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	if createdBy != nil {
		b.CreatedBy = *createdBy
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &b.Metadata); err != nil {
			return nil, fmt.Errorf("decoding backup metadata: %w", err)
		}
	}
	return &b, nil
}
