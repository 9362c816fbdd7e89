// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/stockroom-hq/stockroom/internal/auth"
	"github.com/stockroom-hq/stockroom/internal/backup"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/restore"
	"github.com/stockroom-hq/stockroom/internal/scheduler"
	"github.com/stockroom-hq/stockroom/internal/settings"
	"github.com/stockroom-hq/stockroom/internal/validation"
)

// Handler carries the services the HTTP layer fronts.
type Handler struct {
	backups   *backup.Engine
	restorer  *restore.Engine
	scheduler *scheduler.Scheduler
	health    *scheduler.HealthChecker
	schedules *settings.ScheduleStore
	maxUpload int64
}

// NewHandler builds the Handler.
func NewHandler(backups *backup.Engine, restorer *restore.Engine, sched *scheduler.Scheduler, health *scheduler.HealthChecker, schedules *settings.ScheduleStore, maxUpload int64) *Handler {
	return &Handler{
		backups:   backups,
		restorer:  restorer,
		scheduler: sched,
		health:    health,
		schedules: schedules,
		maxUpload: maxUpload,
	}
}

func actorName(r *http.Request) string {
	if actor := auth.ActorFromContext(r.Context()); actor != nil {
		return actor.Username
	}
	return ""
}

// requireID pulls the mandatory id query parameter.
func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "id query parameter is required", nil)
		return "", false
	}
	return id, true
}

type createBackupRequest struct {
	Name string `json:"name" validate:"omitempty,max=200"`
}

// CreateBackup handles POST /backups.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	var req createBackupRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", err)
			return
		}
		if verr := validation.ValidateStruct(&req); verr != nil {
			apiErr := verr.ToAPIError()
			respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
			return
		}
	}

	b, err := h.backups.Create(r.Context(), req.Name, actorName(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CREATE_BACKUP_FAILED", "backup creation failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// ListBackups handles GET /backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backups.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "LIST_BACKUPS_FAILED", "could not list backups", err)
		return
	}
	if backups == nil {
		backups = []*backup.Backup{}
	}
	respondJSON(w, http.StatusOK, backups)
}

// GetBackup handles GET /backups/get?id=.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	b, err := h.backups.Get(r.Context(), id)
	if errors.Is(err, backup.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "backup not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GET_BACKUP_FAILED", "could not load backup", err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// DeleteBackup handles DELETE /backups/delete?id=.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	err := h.backups.Delete(r.Context(), id, actorName(r))
	if errors.Is(err, backup.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "backup not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DELETE_BACKUP_FAILED", "could not delete backup", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// DownloadBackup handles GET /backups/download?id=. Serves the raw
// artifact with an attachment disposition; 404 when the metadata row
// exists but the file has gone missing on disk.
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	b, err := h.backups.Get(r.Context(), id)
	if errors.Is(err, backup.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "backup not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GET_BACKUP_FAILED", "could not load backup", err)
		return
	}

	f, err := os.Open(b.FilePath)
	if err != nil {
		respondError(w, http.StatusNotFound, "FILE_NOT_FOUND", "backup file is missing on disk", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", contentDisposition(b.FileName))
	http.ServeContent(w, r, b.FileName, b.CreatedAt, f)
}

// contentDisposition renders an attachment header with a UTF-8-safe
// RFC 5987 filename* alongside the plain ASCII fallback.
func contentDisposition(fileName string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, fileName)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		ascii, url.PathEscape(fileName))
}

// RestoreBackup handles POST /backups/restore?id=.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	result, err := h.restorer.Restore(r.Context(), id, actorName(r))
	if errors.Is(err, backup.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "backup not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "RESTORE_FAILED", "restore failed", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// UploadBackup handles POST /backups/upload (multipart, field "file").
func (h *Handler) UploadBackup(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1024*1024)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "multipart field 'file' is required", err)
		return
	}
	defer file.Close()

	b, err := h.backups.Upload(r.Context(), file, header.Filename, header.Size, h.maxUpload, actorName(r))
	switch {
	case errors.Is(err, backup.ErrUnsupportedFile):
		respondError(w, http.StatusBadRequest, "UNSUPPORTED_FILE",
			"only .dump, .json and .json.gz backup files are accepted", nil)
		return
	case errors.Is(err, backup.ErrFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "backup file exceeds the size limit", nil)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "UPLOAD_FAILED", "upload failed", err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// GetSchedule handles GET /backup/schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := h.schedules.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GET_SCHEDULE_FAILED", "could not load schedule", err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

// scheduleUpdateRequest is a partial schedule patch; absent fields keep
// their previous values (full merge-and-revalidate).
type scheduleUpdateRequest struct {
	Enabled    *bool   `json:"enabled"`
	Frequency  *string `json:"frequency"`
	DayOfWeek  *int    `json:"dayOfWeek"`
	Time       *string `json:"time"`
	TimeZone   *string `json:"timeZone"`
	KeepLast   *int    `json:"keepLast"`
	MaxAgeDays *int    `json:"maxAgeDays"`
}

func (req *scheduleUpdateRequest) apply(sched *settings.Schedule) {
	if req.Enabled != nil {
		sched.Enabled = *req.Enabled
	}
	if req.Frequency != nil {
		sched.Frequency = *req.Frequency
	}
	if req.DayOfWeek != nil {
		sched.DayOfWeek = *req.DayOfWeek
	}
	if req.Time != nil {
		sched.Time = *req.Time
	}
	if req.TimeZone != nil {
		sched.TimeZone = *req.TimeZone
	}
	if req.KeepLast != nil {
		sched.KeepLast = *req.KeepLast
	}
	if req.MaxAgeDays != nil {
		sched.MaxAgeDays = *req.MaxAgeDays
	}
}

// UpdateSchedule handles PUT /backup/schedule: merge over the previous
// document, revalidate the whole thing, persist, and return the
// normalized result.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body", err)
		return
	}

	sched, err := h.schedules.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "GET_SCHEDULE_FAILED", "could not load schedule", err)
		return
	}
	req.apply(&sched)

	if err := h.schedules.Save(r.Context(), sched); err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			apiErr := verr.ToAPIError()
			respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "UPDATE_SCHEDULE_FAILED", "could not save schedule", err)
		return
	}

	logging.Info().
		Str("actor", actorName(r)).
		Bool("enabled", sched.Enabled).
		Str("time", sched.Time).
		Msg("Backup schedule updated")
	respondJSON(w, http.StatusOK, sched)
}

// RunNow handles POST /backup/run: a manual run that bypasses the
// due-check but not the job lock. Skip outcomes are 200s with a reason.
func (h *Handler) RunNow(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.scheduler.RunScheduledBackup(r.Context(), scheduler.TriggerManual)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CREATE_BACKUP_FAILED", "backup run failed", err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// CronBackup handles GET|POST /cron/backup.
func (h *Handler) CronBackup(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.scheduler.RunScheduledBackup(r.Context(), scheduler.TriggerCron)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "CREATE_BACKUP_FAILED", "scheduled backup failed", err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// CronHealthCheck handles GET|POST /cron/healthcheck.
func (h *Handler) CronHealthCheck(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.health.RunHealthCheck(r.Context(), scheduler.TriggerCron)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "HEALTH_CHECK_FAILED", "health check failed", err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

// Healthz handles GET /healthz: process liveness only.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
