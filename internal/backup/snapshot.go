// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/stockroom-hq/stockroom/internal/database"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is the JSON fallback backup format: every base table's rows,
// keyed by schema-qualified table name, with values already scalar.
type Snapshot struct {
	Version   int                         `json:"version"`
	CreatedAt time.Time                   `json:"createdAt"`
	Tables    map[string][]map[string]any `json:"tables"`
}

// BuildSnapshot captures every base table in every non-system schema.
func BuildSnapshot(ctx context.Context, q database.Querier, now time.Time) (*Snapshot, error) {
	tables, err := database.ListBaseTables(ctx, q)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: now.UTC(),
		Tables:    make(map[string][]map[string]any, len(tables)),
	}
	for _, table := range tables {
		rows, err := captureTable(ctx, q, table)
		if err != nil {
			return nil, fmt.Errorf("capturing %s: %w", table, err)
		}
		snap.Tables[table] = rows
	}
	return snap, nil
}

func captureTable(ctx context.Context, q database.Querier, table string) ([]map[string]any, error) {
	quoted, err := database.QuoteQualified(table)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	captured := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = normalizeValue(values[i])
		}
		captured = append(captured, row)
	}
	return captured, rows.Err()
}

// normalizeValue coerces driver types into JSON-serializable scalars.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return string(val)
	default:
		return v
	}
}

// WriteSnapshot serializes and gzips a snapshot to path atomically: the
// payload lands in a temp file in the same directory and is renamed into
// place only after a successful sync, so a failed write never leaves a
// truncated file claimed as valid.
func WriteSnapshot(snap *Snapshot, path string) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	gw := gzip.NewWriter(tmp)
	if _, err := gw.Write(raw); err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("finalizing snapshot compression: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publishing snapshot file: %w", err)
	}
	tmpName = ""
	return nil
}

// ReadSnapshot loads a snapshot from disk, transparently decompressing
// .gz artifacts.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot decompressor: %w", err)
		}
		defer gr.Close()
		reader = gr
	}

	var snap Snapshot
	if err := json.NewDecoder(reader).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}
