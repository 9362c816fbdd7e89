// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockroom-hq/stockroom/internal/auth"
	"github.com/stockroom-hq/stockroom/internal/middleware"
)

// RouterConfig carries the router's cross-cutting settings.
type RouterConfig struct {
	CORSOrigins []string
	CronToken   string
}

// NewRouter wires every endpoint with its middleware chain. Admin routes
// sit behind JWT auth plus per-route permissions; cron routes sit behind
// the shared token; health and metrics are open.
func NewRouter(h *Handler, authMW *auth.Middleware, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Cron-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(120, time.Minute))
			r.Use(authMW.Authenticate)

			r.With(authMW.RequirePermission(auth.PermBackupsCreate)).
				Post("/backups", h.CreateBackup)
			r.With(authMW.RequirePermission(auth.PermBackupsView)).
				Get("/backups", h.ListBackups)
			r.With(authMW.RequirePermission(auth.PermBackupsView)).
				Get("/backups/get", h.GetBackup)
			r.With(authMW.RequirePermission(auth.PermBackupsDelete)).
				Delete("/backups/delete", h.DeleteBackup)
			r.With(authMW.RequirePermission(auth.PermBackupsView)).
				Get("/backups/download", h.DownloadBackup)
			r.With(authMW.RequirePermission(auth.PermBackupsRestore)).
				Post("/backups/restore", h.RestoreBackup)
			r.With(authMW.RequirePermission(auth.PermBackupsCreate)).
				Post("/backups/upload", h.UploadBackup)

			r.With(authMW.RequirePermission(auth.PermBackupsSchedule)).
				Get("/backup/schedule", h.GetSchedule)
			r.With(authMW.RequirePermission(auth.PermBackupsSchedule)).
				Put("/backup/schedule", h.UpdateSchedule)
			r.With(authMW.RequirePermission(auth.PermBackupsCreate)).
				Post("/backup/run", h.RunNow)
		})

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(10, time.Minute))
			r.Use(authMW.RequireCronToken(cfg.CronToken))

			r.Get("/cron/backup", h.CronBackup)
			r.Post("/cron/backup", h.CronBackup)
			r.Get("/cron/healthcheck", h.CronHealthCheck)
			r.Post("/cron/healthcheck", h.CronHealthCheck)
		})
	})

	return r
}

// NewErrorWriter exposes the envelope writer for the auth middleware.
func NewErrorWriter() auth.ErrorWriter {
	return errorWriter
}
