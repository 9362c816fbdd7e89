// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package backup creates, stores, uploads and prunes database backup
// artifacts. A backup is either a native pg_dump archive or, when the dump
// tool is unavailable, a gzipped JSON snapshot of every base table.
package backup

import "time"

// Generating methods. The method tells the restore engine how to consume
// the artifact.
const (
	MethodNativeDump   = "native-dump"
	MethodJSONSnapshot = "json-snapshot"
	MethodUploaded     = "uploaded"
)

// Lifecycle statuses. pending becomes completed once the artifact is
// finalized and its size measured; completed is terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// DocumentPrefix is the document-number prefix for backup records.
const DocumentPrefix = "BKP"

// Backup is one backup artifact's metadata row.
type Backup struct {
	ID             string            `json:"id"`
	DocumentNumber string            `json:"documentNumber"`
	Name           string            `json:"name,omitempty"`
	Method         string            `json:"method"`
	FileName       string            `json:"fileName"`
	FilePath       string            `json:"-"`
	SizeBytes      int64             `json:"sizeBytes"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedBy      string            `json:"createdBy,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}
