// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package database

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches identifiers that are safe to interpolate after
// quoting. Everything else is rejected outright rather than escaped.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

// ValidIdentifier reports whether name is an allow-listed SQL identifier.
func ValidIdentifier(name string) bool {
	return name != "" && len(name) <= 63 && identifierPattern.MatchString(name)
}

// QuoteIdentifier double-quotes an identifier after allow-list validation.
// Table and column names in backup snapshots cross a trust boundary, so
// every name is validated before it reaches dynamic SQL.
func QuoteIdentifier(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// QuoteQualified quotes a schema-qualified table name. Input accepts either
// "table" (defaulting to public) or "schema.table".
func QuoteQualified(qualified string) (string, error) {
	schema := "public"
	table := qualified
	if idx := strings.IndexByte(qualified, '.'); idx >= 0 {
		schema = qualified[:idx]
		table = qualified[idx+1:]
	}
	qs, err := QuoteIdentifier(schema)
	if err != nil {
		return "", fmt.Errorf("invalid schema in %q: %w", qualified, err)
	}
	qt, err := QuoteIdentifier(table)
	if err != nil {
		return "", fmt.Errorf("invalid table in %q: %w", qualified, err)
	}
	return qs + "." + qt, nil
}

// SplitQualified splits "schema.table" into its parts, defaulting schema to
// public when unqualified.
func SplitQualified(qualified string) (schema, table string) {
	if idx := strings.IndexByte(qualified, '.'); idx >= 0 {
		return qualified[:idx], qualified[idx+1:]
	}
	return "public", qualified
}
