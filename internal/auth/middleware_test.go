// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testErrorWriter(w http.ResponseWriter, status int, code, _ string) {
	w.WriteHeader(status)
	w.Write([]byte(code)) //nolint:errcheck
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestMiddleware(t *testing.T) (*Middleware, *JWTManager) {
	t.Helper()
	jm, err := NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return NewMiddleware(jm, testErrorWriter), jm
}

func TestAuthenticate(t *testing.T) {
	m, jm := newTestMiddleware(t)
	handler := m.Authenticate(okHandler())

	token, err := jm.GenerateToken("admin", []string{PermBackupsView})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", authHeader: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", authHeader: "Bearer not.a.jwt", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/backups", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	jm, err := NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	// A second manager with a negative lifetime mints pre-expired tokens.
	expired := &JWTManager{secret: []byte(testSecret), timeout: -time.Hour}
	token, err := expired.GenerateToken("admin", nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := jm.ValidateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestRequirePermission(t *testing.T) {
	m, jm := newTestMiddleware(t)

	run := func(perms []string, slug string) int {
		token, err := jm.GenerateToken("clerk", perms)
		if err != nil {
			t.Fatal(err)
		}
		handler := m.Authenticate(m.RequirePermission(slug)(okHandler()))
		r := httptest.NewRequest(http.MethodDelete, "/backups/delete", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if got := run([]string{PermBackupsDelete}, PermBackupsDelete); got != http.StatusOK {
		t.Errorf("granted slug: status = %d, want 200", got)
	}
	if got := run([]string{PermBackupsView}, PermBackupsDelete); got != http.StatusForbidden {
		t.Errorf("missing slug: status = %d, want 403", got)
	}
	if got := run([]string{"*"}, PermBackupsDelete); got != http.StatusOK {
		t.Errorf("wildcard: status = %d, want 200", got)
	}
}

func TestRequireCronToken(t *testing.T) {
	m, _ := newTestMiddleware(t)
	handler := m.RequireCronToken("cron-secret")(okHandler())

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "header token", header: "cron-secret", wantStatus: http.StatusOK},
		{name: "query token", query: "cron-secret", wantStatus: http.StatusOK},
		{name: "wrong token", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/cron/backup"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodPost, url, nil)
			if tt.header != "" {
				r.Header.Set("X-Cron-Token", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireCronTokenDisabledWithoutSecret(t *testing.T) {
	m, _ := newTestMiddleware(t)
	handler := m.RequireCronToken("")(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/cron/backup?token=", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no cron token is configured", w.Code)
	}
}

func TestClaimsRoundTrip(t *testing.T) {
	jm, err := NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := jm.GenerateToken("admin", []string{PermBackupsCreate, PermBackupsRestore})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := jm.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "admin" {
		t.Errorf("username = %q, want admin", claims.Username)
	}
	if !claims.HasPermission(PermBackupsRestore) || claims.HasPermission(PermBackupsDelete) {
		t.Error("permission set did not round-trip")
	}

	if _, err := NewJWTManager("short", time.Hour); err == nil {
		t.Error("expected error for short secret")
	}

	if !strings.HasPrefix(token, "eyJ") {
		t.Errorf("token does not look like a JWT: %s", token[:10])
	}
}
