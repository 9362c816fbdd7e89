// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package auth authenticates admin requests and authorizes them against
// permission slugs. Sessions are stateless HS256 JWTs carrying the actor's
// permissions; the cron endpoints instead use a shared-secret token.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Permission slugs gating backup operations.
const (
	PermBackupsCreate   = "backups.create"
	PermBackupsView     = "backups.view"
	PermBackupsDelete   = "backups.delete"
	PermBackupsRestore  = "backups.restore"
	PermBackupsSchedule = "backups.schedule"
)

// Claims are the JWT claims carried by an admin session token.
type Claims struct {
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the token grants slug. A wildcard "*"
// grants everything.
func (c *Claims) HasPermission(slug string) bool {
	for _, p := range c.Permissions {
		if p == slug || p == "*" {
			return true
		}
	}
	return false
}

// JWTManager creates and validates session tokens. HS256 only; any other
// signing method in an incoming token is rejected.
type JWTManager struct {
	secret  []byte
	timeout time.Duration
}

// NewJWTManager builds a JWTManager. The secret must be at least 32
// characters.
func NewJWTManager(secret string, timeout time.Duration) (*JWTManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("JWT secret must be at least 32 characters")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), timeout: timeout}, nil
}

// GenerateToken signs a session token for username with the given
// permission slugs.
func (m *JWTManager) GenerateToken(username string, permissions []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username:    username,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.timeout)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a session token.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
