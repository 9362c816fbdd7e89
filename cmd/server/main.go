// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package main is the entry point for the Stockroom backup server.
//
// The process wires up, in order: configuration (koanf), logging (zerolog),
// PostgreSQL (pgx pool plus schema bootstrap), the optional Redis lock
// store, the backup and restore engines, the audit writer, and the
// suture-supervised background jobs (backup scheduler, health checker) next
// to the chi HTTP server. Shutdown on SIGINT/SIGTERM is graceful: the HTTP
// server drains in-flight requests, the jobs stop at their next tick, and
// the audit buffer is flushed before the pool closes.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockroom-hq/stockroom/internal/alert"
	"github.com/stockroom-hq/stockroom/internal/api"
	"github.com/stockroom-hq/stockroom/internal/audit"
	"github.com/stockroom-hq/stockroom/internal/auth"
	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/config"
	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/docnum"
	"github.com/stockroom-hq/stockroom/internal/lock"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/restore"
	"github.com/stockroom-hq/stockroom/internal/scheduler"
	"github.com/stockroom-hq/stockroom/internal/settings"
	"github.com/stockroom-hq/stockroom/internal/supervisor"
)

// version is set at build time via -ldflags.
var version = "dev"

const auditRetention = 90 * 24 * time.Hour

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Stockroom backup server starting")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := database.Connect(bootCtx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(bootCtx); err != nil {
		return fmt.Errorf("bootstrapping schema: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close() //nolint:errcheck
		if err := rdb.Ping(bootCtx).Err(); err != nil {
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("Redis unreachable at boot, job locks will use the advisory fallback")
		} else {
			logging.Info().Str("addr", cfg.Redis.Addr).Msg("Redis lock store connected")
		}
	} else {
		logging.Info().Msg("Redis not configured, job locks use PostgreSQL advisory locks")
	}

	auditLog := audit.NewLogger(audit.NewPostgresStore(db.Pool()), 0, auditRetention)
	defer auditLog.Close()

	locks := lock.NewManager(rdb, db)
	docs := docnum.New(db.Pool())
	repo := backup.NewRepository(db.Pool())
	tool := backup.NewDumpTool(cfg.Backup.DumpTool, cfg.Backup.RestoreTool, cfg.Backup.ToolTimeout)
	engine := backup.NewEngine(db, repo, docs, tool, auditLog, cfg.Backup.Dir)
	restorer := restore.NewEngine(db, repo, tool, auditLog)

	store := settings.NewStore(db.Pool())
	schedules := settings.NewScheduleStore(store, settings.KeyBackupSchedule)
	pollInterval := cfg.Scheduler.EffectivePollInterval()
	sched := scheduler.New(schedules, locks, engine, pollInterval, cfg.Scheduler.LockTTL)

	var notifier scheduler.Notifier
	if cfg.Alert.Enabled {
		notifier = alert.NewNotifier(cfg.Alert.SMTPHost, cfg.Alert.SMTPPort,
			cfg.Alert.Username, cfg.Alert.Password, cfg.Alert.From, cfg.Alert.To)
	} else {
		notifier = alert.NewNotifier("", 0, "", "", "", nil)
	}
	health := scheduler.NewHealthChecker(db, store, engine, locks, notifier,
		cfg.Backup.Dir, pollInterval, cfg.Scheduler.LockTTL)

	jwt, err := auth.NewJWTManager(cfg.Auth.JWTSecret, 0)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	authMW := auth.NewMiddleware(jwt, api.NewErrorWriter())

	handler := api.NewHandler(engine, restorer, sched, health, schedules, cfg.Backup.MaxUploadBytes)
	router := api.NewRouter(handler, authMW, api.RouterConfig{
		CORSOrigins: cfg.Server.CORSOrigins,
		CronToken:   cfg.Auth.CronToken,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddJobService(sched)
	tree.AddJobService(health)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
	err = tree.Serve(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}
