// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package backup

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stockroom-hq/stockroom/internal/logging"
)

// DumpTool invokes the external pg_dump/pg_restore binaries. Tool paths
// come from configuration so deployments can pin versioned binaries.
type DumpTool struct {
	dumpPath    string
	restorePath string
	timeout     time.Duration
}

// NewDumpTool builds a DumpTool. Empty paths default to the bare tool
// names resolved via PATH.
func NewDumpTool(dumpPath, restorePath string, timeout time.Duration) *DumpTool {
	if dumpPath == "" {
		dumpPath = "pg_dump"
	}
	if restorePath == "" {
		restorePath = "pg_restore"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &DumpTool{dumpPath: dumpPath, restorePath: restorePath, timeout: timeout}
}

// Dump writes a custom-format archive of the database at connStr to
// destPath. Returns an error on missing binary, non-zero exit, or timeout;
// the caller treats any failure as the trigger for the snapshot fallback.
func (t *DumpTool) Dump(ctx context.Context, connStr, destPath string) error {
	if connStr == "" {
		return fmt.Errorf("no connection string available for %s", t.dumpPath)
	}
	args := []string{
		"--format=custom",
		"--no-owner",
		"--no-privileges",
		"--file", destPath,
		connStr,
	}
	return t.run(ctx, t.dumpPath, args)
}

// Restore replays a custom-format archive into the database at connStr,
// dropping existing objects first.
func (t *DumpTool) Restore(ctx context.Context, connStr, srcPath string) error {
	if connStr == "" {
		return fmt.Errorf("no connection string available for %s", t.restorePath)
	}
	args := []string{
		"--clean",
		"--if-exists",
		"--no-owner",
		"--no-privileges",
		"--dbname", connStr,
		srcPath,
	}
	return t.run(ctx, t.restorePath, args)
}

func (t *DumpTool) run(ctx context.Context, bin string, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", bin, t.timeout)
		}
		if detail != "" {
			return fmt.Errorf("%s failed: %w: %s", bin, err, truncate(detail, 500))
		}
		return fmt.Errorf("%s failed: %w", bin, err)
	}

	logging.Debug().Str("tool", bin).Dur("elapsed", elapsed).Msg("External tool completed")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
