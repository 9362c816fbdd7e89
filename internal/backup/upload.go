// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// Upload validation failures. ErrUnsupportedFile maps to the
// UNSUPPORTED_FILE code at the API boundary.
var (
	ErrUnsupportedFile = errors.New("unsupported backup file type")
	ErrFileTooLarge    = errors.New("backup file exceeds size limit")
)

// allowedExtensions is the upload allow-list. Extensions are matched on
// the full multi-part suffix so payload.json.gz passes and payload.gz
// alone does not.
var allowedExtensions = []string{".dump", ".json.gz", ".json"}

// AllowedExtension returns the matching allow-listed extension of
// fileName, or "" when the file type is not accepted.
func AllowedExtension(fileName string) string {
	lower := strings.ToLower(fileName)
	for _, ext := range allowedExtensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return ext
		}
	}
	return ""
}

// Upload validates and stores an externally supplied backup artifact.
// Validation failures reject before any disk write; a copy failure cleans
// up the partial file, so a failed upload never leaves anything behind.
func (e *Engine) Upload(ctx context.Context, src io.Reader, declaredName string, declaredSize, maxBytes int64, actor string) (*Backup, error) {
	ext := AllowedExtension(declaredName)
	if ext == "" {
		metrics.UploadsRejected.WithLabelValues("extension").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(declaredName))
	}
	if maxBytes > 0 && declaredSize > maxBytes {
		metrics.UploadsRejected.WithLabelValues("size").Inc()
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, declaredSize)
	}

	if err := os.MkdirAll(e.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := time.Now().UTC()
	number, err := e.docs.Next(ctx, DocumentPrefix, now)
	if err != nil {
		return nil, err
	}

	// Random suffix makes the stored name collision-proof regardless of
	// what the client declared.
	fileName := fmt.Sprintf("%s-upload-%s%s", number, uuid.NewString()[:8], ext)
	filePath := filepath.Join(e.dir, fileName)

	written, err := copyBounded(filePath, src, maxBytes)
	if err != nil {
		os.Remove(filePath)
		if errors.Is(err, ErrFileTooLarge) {
			metrics.UploadsRejected.WithLabelValues("size").Inc()
		}
		return nil, err
	}

	b := &Backup{
		ID:             uuid.NewString(),
		DocumentNumber: number,
		Name:           filepath.Base(declaredName),
		Method:         MethodUploaded,
		FileName:       fileName,
		FilePath:       filePath,
		SizeBytes:      written,
		Status:         StatusPending,
		Metadata:       map[string]string{"originalName": filepath.Base(declaredName)},
		CreatedBy:      actor,
		CreatedAt:      now,
	}
	if err := e.finalize(ctx, b); err != nil {
		os.Remove(filePath)
		return nil, err
	}

	e.audit.Write("backup.upload", "backup", b.ID, actor, map[string]any{
		"originalName": filepath.Base(declaredName),
		"sizeBytes":    written,
	})
	return b, nil
}

// copyBounded streams src to path, erroring once more than maxBytes have
// been observed. The extra byte past the limit distinguishes "exactly at
// the limit" from "over it".
func copyBounded(path string, src io.Reader, maxBytes int64) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("creating upload file: %w", err)
	}
	defer dst.Close()

	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	written, err := io.Copy(dst, reader)
	if err != nil {
		return written, fmt.Errorf("writing upload: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		return written, ErrFileTooLarge
	}
	if err := dst.Sync(); err != nil {
		return written, fmt.Errorf("syncing upload: %w", err)
	}
	return written, nil
}
