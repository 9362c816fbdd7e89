// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stockroom-hq/stockroom/internal/auth"
	"github.com/stockroom-hq/stockroom/internal/settings"
)

func TestRespondJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]string{"id": "abc"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status field = %q, want success", resp.Status)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error field: %+v", resp.Error)
	}
	if resp.Metadata.Timestamp.IsZero() {
		t.Error("metadata timestamp not set")
	}
}

func TestRespondErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusNotFound, "NOT_FOUND", "backup not found", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status field = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("error field = %+v, want code NOT_FOUND", resp.Error)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "backup-42", "backup-42"},
		{"newline injection", "a\nb", "a\\x0ab"},
		{"carriage return", "a\rb", "a\\x0db"},
		{"delete char", "a\x7fb", "a\\x7fb"},
		{"unicode preserved", "café", "café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogValue(tt.input); got != tt.want {
				t.Errorf("sanitizeLogValue(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestContentDisposition(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		want     string
	}{
		{
			"plain ascii",
			"BKP-202601-0001-20260115-020000.dump",
			`attachment; filename="BKP-202601-0001-20260115-020000.dump"; filename*=UTF-8''BKP-202601-0001-20260115-020000.dump`,
		},
		{
			"quote escaped in fallback",
			`ba"ckup.dump`,
			`attachment; filename="ba_ckup.dump"; filename*=UTF-8''ba%22ckup.dump`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentDisposition(tt.fileName); got != tt.want {
				t.Errorf("contentDisposition(%q) =\n  %s\nwant\n  %s", tt.fileName, got, tt.want)
			}
		})
	}
}

func TestScheduleUpdateMerge(t *testing.T) {
	base := settings.DefaultSchedule()
	base.LastRunAt = "2026-01-15T02:00:00Z"
	base.LastBackupID = "keep-me"

	enabled := true
	hhmm := "03:30"
	keep := 14

	req := scheduleUpdateRequest{
		Enabled:  &enabled,
		Time:     &hhmm,
		KeepLast: &keep,
	}
	req.apply(&base)

	if !base.Enabled {
		t.Error("Enabled not applied")
	}
	if base.Time != "03:30" {
		t.Errorf("Time = %q, want 03:30", base.Time)
	}
	if base.KeepLast != 14 {
		t.Errorf("KeepLast = %d, want 14", base.KeepLast)
	}
	// Untouched fields survive the merge.
	if base.Frequency != settings.FrequencyDaily {
		t.Errorf("Frequency changed to %q", base.Frequency)
	}
	if base.LastRunAt != "2026-01-15T02:00:00Z" || base.LastBackupID != "keep-me" {
		t.Error("bookkeeping fields must not be touched by admin updates")
	}
}

func TestScheduleUpdateEmptyPatchIsNoop(t *testing.T) {
	base := settings.DefaultSchedule()
	want := base

	var req scheduleUpdateRequest
	req.apply(&base)

	if base != want {
		t.Errorf("empty patch changed the schedule: %+v != %+v", base, want)
	}
}

const testJWTSecret = "0123456789abcdef0123456789abcdef"

func testRouter(t *testing.T, cronToken string) http.Handler {
	t.Helper()
	jwt, err := auth.NewJWTManager(testJWTSecret, 0)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	authMW := auth.NewMiddleware(jwt, NewErrorWriter())
	h := NewHandler(nil, nil, nil, nil, nil, 0)
	return NewRouter(h, authMW, RouterConfig{
		CORSOrigins: []string{"*"},
		CronToken:   cronToken,
	})
}

func TestRouterHealthzOpen(t *testing.T) {
	router := testRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"success"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRouterAdminRoutesRequireAuth(t *testing.T) {
	router := testRouter(t, "")
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/backups"},
		{http.MethodPost, "/api/v1/backups"},
		{http.MethodDelete, "/api/v1/backups/delete?id=x"},
		{http.MethodPut, "/api/v1/backup/schedule"},
		{http.MethodPost, "/api/v1/backup/run"},
	}
	for _, rt := range routes {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(rt.method, rt.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", rt.method, rt.path, rec.Code)
		}
	}
}

func TestRouterCronTokenGate(t *testing.T) {
	router := testRouter(t, "topsecret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cron/backup", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("cron without token = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cron/backup", nil)
	req.Header.Set("X-Cron-Token", "wrong")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("cron with wrong token = %d, want 401", rec.Code)
	}
}

func TestRouterCronDisabledWithoutConfiguredToken(t *testing.T) {
	router := testRouter(t, "")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cron/healthcheck", nil)
	req.Header.Set("X-Cron-Token", "anything")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("cron with no configured token = %d, want 401", rec.Code)
	}
}

func TestRouterMetricsEndpointOpen(t *testing.T) {
	router := testRouter(t, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
}
