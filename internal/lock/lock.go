// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package lock provides cross-process mutual exclusion for background jobs.
// The primary path is a Redis SET NX PX with a release token; when Redis is
// unavailable (or the circuit breaker is open after repeated failures) the
// manager falls back to a PostgreSQL session advisory lock. Failing to
// acquire on either path is a normal "someone else has it" outcome, never
// an error.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// Job lock keys. Backup and health-check jobs use distinct keys so they
// never contend with each other.
const (
	JobBackup      = "stockroom:lock:backup"
	JobHealthCheck = "stockroom:lock:healthcheck"
)

// releaseScript deletes the lock key only when it still carries the
// caller's token, so a slow former holder cannot release a lock that has
// since expired and been re-acquired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Lease is a held lock. Release must be called exactly once, typically
// deferred immediately after a successful TryAcquire.
type Lease struct {
	Key     string
	Token   string
	Path    string // "redis" or "advisory"
	release func()
}

// Release frees the lock. Safe to call on a nil Lease.
func (l *Lease) Release() {
	if l == nil || l.release == nil {
		return
	}
	l.release()
	l.release = nil
}

// Manager acquires and releases job locks. A nil Redis client disables the
// fast path entirely and every acquisition goes straight to the advisory
// fallback.
type Manager struct {
	rdb     *redis.Client
	db      *database.DB
	breaker *gobreaker.CircuitBreaker[bool]
}

// NewManager builds a Manager. rdb may be nil when Redis is not configured.
func NewManager(rdb *redis.Client, db *database.DB) *Manager {
	var breaker *gobreaker.CircuitBreaker[bool]
	if rdb != nil {
		breaker = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name:        "redis-lock",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Lock circuit breaker state change")
			},
		})
	}
	return &Manager{rdb: rdb, db: db, breaker: breaker}
}

// TryAcquire attempts to take the lock for key with the given TTL. The
// returned Lease is nil when the lock is held elsewhere; that condition is
// signalled through held=false, not an error. Errors are reserved for
// situations where neither path could even be attempted.
func (m *Manager) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if m.rdb != nil {
		lease, held, err := m.tryRedis(ctx, key, ttl)
		if err == nil {
			result := "contended"
			if held {
				result = "acquired"
			}
			metrics.LockAcquisitions.WithLabelValues(key, "redis", result).Inc()
			return lease, held, nil
		}
		logging.Warn().Err(err).Str("key", key).Msg("Redis lock path unavailable, falling back to advisory lock")
		metrics.LockAcquisitions.WithLabelValues(key, "redis", "error").Inc()
	}

	return m.tryAdvisory(ctx, key)
}

func (m *Manager) tryRedis(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()

	held, err := m.breaker.Execute(func() (bool, error) {
		return m.rdb.SetNX(ctx, key, token, ttl).Result()
	})
	if err != nil {
		return nil, false, err
	}
	if !held {
		return nil, false, nil
	}

	lease := &Lease{
		Key:   key,
		Token: token,
		Path:  "redis",
		release: func() {
			// Compare-and-delete; best effort, the TTL is the backstop.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.rdb.Eval(releaseCtx, releaseScript, []string{key}, token).Err(); err != nil {
				logging.Warn().Err(err).Str("key", key).Msg("Lock release failed, TTL will expire it")
			}
		},
	}
	return lease, true, nil
}

func (m *Manager) tryAdvisory(ctx context.Context, key string) (*Lease, bool, error) {
	release, held, err := m.db.TryAdvisoryLock(ctx, key)
	if err != nil {
		metrics.LockAcquisitions.WithLabelValues(key, "advisory", "error").Inc()
		return nil, false, err
	}
	if !held {
		metrics.LockAcquisitions.WithLabelValues(key, "advisory", "contended").Inc()
		return nil, false, nil
	}
	metrics.LockAcquisitions.WithLabelValues(key, "advisory", "acquired").Inc()
	return &Lease{Key: key, Path: "advisory", release: release}, true, nil
}
