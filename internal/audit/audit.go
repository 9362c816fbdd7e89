// Stockroom - Online Store Administration Backend
// Copyright 2026 Stockroom Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stockroom-hq/stockroom

// Package audit records who did what to which entity. Writes are buffered
// and flushed by a background goroutine; a full buffer drops the event and
// increments a counter rather than blocking the caller. Audit problems
// never propagate into the operation being audited.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/stockroom-hq/stockroom/internal/database"
	"github.com/stockroom-hq/stockroom/internal/logging"
	"github.com/stockroom-hq/stockroom/internal/metrics"
)

// Event is one audit record.
type Event struct {
	OccurredAt time.Time
	Actor      string
	Action     string
	Entity     string
	EntityID   string
	Detail     map[string]any
}

// Store persists audit events.
type Store interface {
	Write(ctx context.Context, ev *Event) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Logger is the async audit writer.
type Logger struct {
	store     Store
	events    chan *Event
	stop      chan struct{}
	wg        sync.WaitGroup
	retention time.Duration
	closeOnce sync.Once
}

// NewLogger starts the background writer. bufferSize bounds the number of
// in-flight events; retention of zero disables cleanup.
func NewLogger(store Store, bufferSize int, retention time.Duration) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l := &Logger{
		store:     store,
		events:    make(chan *Event, bufferSize),
		stop:      make(chan struct{}),
		retention: retention,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Write enqueues an event. Never blocks and never errors; when the buffer
// is full the event is dropped and counted.
func (l *Logger) Write(action, entity, entityID, actor string, detail map[string]any) {
	ev := &Event{
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Action:     action,
		Entity:     entity,
		EntityID:   entityID,
		Detail:     detail,
	}
	select {
	case l.events <- ev:
	default:
		metrics.NonCriticalFailures.WithLabelValues("audit_write").Inc()
		logging.Warn().Str("action", action).Msg("Audit buffer full, event dropped")
	}
}

// Close flushes buffered events and stops the writer.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()
	})
}

func (l *Logger) run() {
	defer l.wg.Done()

	var cleanup <-chan time.Time
	if l.retention > 0 {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		cleanup = ticker.C
	}

	for {
		select {
		case <-l.stop:
			for {
				select {
				case ev := <-l.events:
					l.persist(ev)
				default:
					return
				}
			}
		case ev := <-l.events:
			l.persist(ev)
		case <-cleanup:
			l.cleanup()
		}
	}
}

func (l *Logger) persist(ev *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.store.Write(ctx, ev); err != nil {
		metrics.NonCriticalFailures.WithLabelValues("audit_write").Inc()
		logging.Warn().Err(err).Str("action", ev.Action).Msg("Audit write failed")
	}
}

func (l *Logger) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	deleted, err := l.store.DeleteOlderThan(ctx, time.Now().Add(-l.retention))
	if err != nil {
		logging.Warn().Err(err).Msg("Audit retention cleanup failed")
		return
	}
	if deleted > 0 {
		logging.Info().Int64("deleted", deleted).Msg("Audit retention cleanup complete")
	}
}

// PostgresStore writes events to the audit_log table.
type PostgresStore struct {
	q database.Querier
}

// NewPostgresStore returns a PostgresStore.
func NewPostgresStore(q database.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// Write inserts one event.
func (s *PostgresStore) Write(ctx context.Context, ev *Event) error {
	var detail []byte
	if len(ev.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(ev.Detail); err != nil {
			return fmt.Errorf("encoding audit detail: %w", err)
		}
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO audit_log (occurred_at, actor, action, entity, entity_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.OccurredAt, ev.Actor, ev.Action, ev.Entity, ev.EntityID, detail)
	if err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events that occurred before cutoff.
func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM audit_log WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
