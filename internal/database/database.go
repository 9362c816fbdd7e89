// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package database wraps the PostgreSQL connection pool and the catalog
// introspection the backup and restore engines depend on: base table
// discovery, live column and primary key lookup, foreign key edges, and
// session-scoped advisory locks.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom-hq/stockroom/internal/config"
	"github.com/stockroom-hq/stockroom/internal/logging"
)

// Querier is the subset of pgx operations shared by *pgxpool.Pool, pgx.Conn
// and pgx.Tx. Catalog helpers accept it so they run equally inside and
// outside a transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB owns the connection pool and the connection string used to drive the
// external dump/restore tools.
type DB struct {
	pool    *pgxpool.Pool
	connStr string
}

// New wraps an existing pool and connection string. Connect is the normal
// entry point; New exists for callers that manage the pool themselves.
func New(pool *pgxpool.Pool, connStr string) *DB {
	return &DB{pool: pool, connStr: connStr}
}

// Connect opens the connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logging.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("Database connected")
	return &DB{pool: pool, connStr: connStr}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// ConnString returns the connection string, as handed to pg_dump/pg_restore.
func (db *DB) ConnString() string {
	return db.connStr
}

// Ping verifies database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// BuildConnString assembles the PostgreSQL connection string. A configured
// URL (typically from the DATABASE_URL environment variable) wins; otherwise
// the string is assembled from the discrete fields.
func BuildConnString(cfg config.DatabaseConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, sslMode)
}
