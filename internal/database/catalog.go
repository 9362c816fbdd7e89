// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package database

import (
	"context"
	"fmt"
	"sort"
)

// ForeignKeyEdge records that a child table references a parent table.
// Self-referencing constraints are reported with From == To.
type ForeignKeyEdge struct {
	From string // child, "schema.table"
	To   string // parent, "schema.table"
}

// SerialColumn identifies a column backed by a sequence, either via a
// serial default or an identity clause.
type SerialColumn struct {
	Table    string // "schema.table"
	Column   string
	Sequence string // fully qualified sequence name
}

// ListBaseTables returns all ordinary tables outside the system schemas as
// sorted "schema.table" names.
func ListBaseTables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing base tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scanning table row: %w", err)
		}
		tables = append(tables, schema+"."+name)
	}
	return tables, rows.Err()
}

// TableColumns returns the live column names of a table in ordinal order.
func TableColumns(ctx context.Context, q Querier, qualified string) ([]string, error) {
	schema, table := SplitQualified(qualified)
	rows, err := q.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing columns for %s: %w", qualified, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// PrimaryKeyColumns returns the primary key column names of a table, or an
// empty slice when the table has no primary key.
func PrimaryKeyColumns(ctx context.Context, q Querier, qualified string) ([]string, error) {
	schema, table := SplitQualified(qualified)
	rows, err := q.Query(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE i.indisprimary
		  AND n.nspname = $1
		  AND c.relname = $2
		ORDER BY array_position(i.indkey, a.attnum)`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing primary key for %s: %w", qualified, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scanning primary key row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// ForeignKeyEdges returns dependency edges among the given tables. Edges
// pointing at tables outside the set are dropped so the restore ordering
// only considers tables it will actually load.
func ForeignKeyEdges(ctx context.Context, q Querier, tables []string) ([]ForeignKeyEdge, error) {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	rows, err := q.Query(ctx, `
		SELECT DISTINCT
			cn.nspname || '.' || cc.relname AS child,
			pn.nspname || '.' || pc.relname AS parent
		FROM pg_constraint con
		JOIN pg_class cc ON cc.oid = con.conrelid
		JOIN pg_namespace cn ON cn.oid = cc.relnamespace
		JOIN pg_class pc ON pc.oid = con.confrelid
		JOIN pg_namespace pn ON pn.oid = pc.relnamespace
		WHERE con.contype = 'f'`)
	if err != nil {
		return nil, fmt.Errorf("listing foreign keys: %w", err)
	}
	defer rows.Close()

	var edges []ForeignKeyEdge
	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, fmt.Errorf("scanning foreign key row: %w", err)
		}
		if inSet[child] && inSet[parent] {
			edges = append(edges, ForeignKeyEdge{From: child, To: parent})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

// SerialColumns returns every sequence-backed column among the given tables,
// covering both serial defaults and generated identity columns.
func SerialColumns(ctx context.Context, q Querier, tables []string) ([]SerialColumn, error) {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	rows, err := q.Query(ctx, `
		SELECT n.nspname || '.' || c.relname,
		       a.attname,
		       pg_get_serial_sequence(n.nspname || '.' || c.relname, a.attname)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r'
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND pg_get_serial_sequence(n.nspname || '.' || c.relname, a.attname) IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing serial columns: %w", err)
	}
	defer rows.Close()

	var cols []SerialColumn
	for rows.Next() {
		var sc SerialColumn
		if err := rows.Scan(&sc.Table, &sc.Column, &sc.Sequence); err != nil {
			return nil, fmt.Errorf("scanning serial column row: %w", err)
		}
		if inSet[sc.Table] {
			cols = append(cols, sc)
		}
	}
	return cols, rows.Err()
}
