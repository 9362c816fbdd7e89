// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/stockroom-hq/stockroom/internal/logging"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated principal attached to a request context.
type Actor struct {
	Username    string
	Permissions []string
}

// ActorFromContext returns the request's actor, or nil for unauthenticated
// paths (cron, health).
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey).(*Actor)
	return actor
}

// ErrorWriter renders an error response. Injected so the middleware uses
// the API layer's envelope without importing it.
type ErrorWriter func(w http.ResponseWriter, status int, code, message string)

// Middleware authenticates bearer tokens and enforces permissions.
type Middleware struct {
	jwt      *JWTManager
	writeErr ErrorWriter
}

// NewMiddleware builds the auth middleware.
func NewMiddleware(jwt *JWTManager, writeErr ErrorWriter) *Middleware {
	return &Middleware{jwt: jwt, writeErr: writeErr}
}

// Authenticate validates the Authorization bearer token and stores the
// actor in the request context. 401 on missing or invalid tokens.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Msg("Token validation failed")
			m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		actor := &Actor{Username: claims.Username, Permissions: claims.Permissions}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// RequirePermission gates a route on one permission slug. Must run after
// Authenticate.
func (m *Middleware) RequirePermission(slug string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}
			if !hasPermission(actor.Permissions, slug) {
				logging.Debug().
					Str("username", actor.Username).
					Str("permission", slug).
					Msg("Permission denied")
				m.writeErr(w, http.StatusForbidden, "FORBIDDEN", "missing permission "+slug)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasPermission(granted []string, slug string) bool {
	for _, p := range granted {
		if p == slug || p == "*" {
			return true
		}
	}
	return false
}

// RequireCronToken authenticates the unattended cron paths with a shared
// secret, supplied via the X-Cron-Token header or a token query parameter.
// Comparison is constant time. 401 on mismatch; no session is involved.
func (m *Middleware) RequireCronToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "cron trigger disabled")
				return
			}
			supplied := r.Header.Get("X-Cron-Token")
			if supplied == "" {
				supplied = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
				m.writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid cron token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
