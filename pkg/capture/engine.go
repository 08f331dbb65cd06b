// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/metrics"
)

// Config configures an Engine.
type Config struct {
	// Persister receives every flushed batch. Required.
	Persister audit.Persister
	// Enrichers run over a batch before it is persisted.
	Enrichers *audit.Enrichers
	// Blacklist applies to sources without their own blacklist.
	// Defaults to DefaultBlacklist.
	Blacklist []string
	// Resolver looks up foreign key labels. Required when a tracked source
	// declares foreign keys.
	Resolver LabelResolver
	Logger   *zap.Logger
	// NewTransactionID generates transaction ids. Defaults to random UUIDs.
	NewTransactionID func() string
}

// Engine turns entity lifecycle notifications into audit events and hands
// them to the persister when the unit of work commits.
type Engine struct {
	persister audit.Persister
	enrichers *audit.Enrichers
	blacklist []string
	resolver  LabelResolver
	logger    *zap.Logger
	newID     func() string

	mu      sync.RWMutex
	sources map[string]*Source
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Persister == nil {
		return nil, errors.New("capture engine requires a persister")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	newID := cfg.NewTransactionID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Engine{
		persister: cfg.Persister,
		enrichers: cfg.Enrichers,
		blacklist: blacklist,
		resolver:  cfg.Resolver,
		logger:    logger.Named("capture"),
		newID:     newID,
		sources:   make(map[string]*Source),
	}, nil
}

// Track registers a source for auditing. Tracking a name twice replaces the
// earlier definition.
func (e *Engine) Track(src Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	if len(src.ForeignKeys) > 0 && e.resolver == nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSource, src.Name, ErrNoResolver)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[src.Name] = &src

	e.logger.Debug("tracking audit source",
		zap.String("source", src.Name),
		zap.Strings("primary_key", src.PrimaryKey),
		zap.String("associations_mode", string(src.AssociationsMode)))
	return nil
}

// Source returns the tracked definition for name.
func (e *Engine) Source(name string) (*Source, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[name]
	return src, ok
}

// BeforeSave starts tracking on uow. The transaction id is assigned by the
// first call after the unit of work was created or last flushed.
func (e *Engine) BeforeSave(_ context.Context, uow *UnitOfWork, source string, snap *Snapshot) error {
	return e.begin(uow, source, snap)
}

// BeforeDelete starts tracking on uow, like BeforeSave.
func (e *Engine) BeforeDelete(_ context.Context, uow *UnitOfWork, source string, snap *Snapshot) error {
	return e.begin(uow, source, snap)
}

func (e *Engine) begin(uow *UnitOfWork, source string, snap *Snapshot) error {
	if uow == nil {
		return fmt.Errorf("%w: %s: unit of work is required", ErrMalformedEntity, source)
	}
	if snap == nil || snap.Ref == "" {
		return fmt.Errorf("%w: %s: entity reference is required", ErrMalformedEntity, source)
	}
	uow.begin(e.newID)
	return nil
}

// AfterSave computes the diff of a saved entity and queues a create or
// update event. Nothing is queued when no tracked field changed.
func (e *Engine) AfterSave(ctx context.Context, uow *UnitOfWork, source string, snap *Snapshot) error {
	src, ok := e.trackedFor(uow, source)
	if !ok {
		return nil
	}

	event, err := e.saveEvent(ctx, uow, src, snap)
	if err != nil {
		metrics.CaptureErrors.WithLabelValues(source, errorReason(err)).Inc()
		e.logger.Error("failed to capture save",
			zap.String("source", source),
			zap.String("transaction", uow.TransactionID()),
			zap.Error(err))
		return err
	}
	if event == nil {
		metrics.EventsSuppressed.WithLabelValues(source).Inc()
		return nil
	}

	uow.enqueue(snap.Ref, event)
	metrics.EventsCaptured.WithLabelValues(source, event.EventType()).Inc()
	return nil
}

// AfterDelete queues a delete event carrying the prior field values.
func (e *Engine) AfterDelete(_ context.Context, uow *UnitOfWork, source string, snap *Snapshot) error {
	src, ok := e.trackedFor(uow, source)
	if !ok {
		return nil
	}

	event, err := e.deleteEvent(uow, src, snap)
	if err != nil {
		metrics.CaptureErrors.WithLabelValues(source, errorReason(err)).Inc()
		e.logger.Error("failed to capture delete",
			zap.String("source", source),
			zap.String("transaction", uow.TransactionID()),
			zap.Error(err))
		return err
	}

	uow.enqueue(snap.Ref, event)
	metrics.EventsCaptured.WithLabelValues(source, event.EventType()).Inc()
	return nil
}

// AfterCommit enriches the queued events and hands them to the persister in
// one call. The queue is cleared afterwards, also when persisting failed, so
// a repeated commit notification never writes the batch twice.
func (e *Engine) AfterCommit(ctx context.Context, uow *UnitOfWork) error {
	if uow == nil {
		return nil
	}
	if uow.state != StateTracking || len(uow.queue) == 0 {
		uow.reset()
		return nil
	}

	uow.state = StateFlushing
	defer uow.reset()

	events := uow.Events()
	start := time.Now()
	defer func() {
		metrics.FlushDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.FlushBatchSize.Observe(float64(len(events)))

	if err := e.enrichers.Enrich(ctx, events); err != nil {
		metrics.FlushFailures.Inc()
		e.logger.Error("failed to enrich audit events",
			zap.String("transaction", uow.TransactionID()),
			zap.Int("events", len(events)),
			zap.Error(err))
		return fmt.Errorf("failed to enrich audit events: %w", err)
	}

	if err := e.persister.LogEvents(ctx, events); err != nil {
		metrics.FlushFailures.Inc()
		e.logger.Error("failed to persist audit events",
			zap.String("transaction", uow.TransactionID()),
			zap.Int("events", len(events)),
			zap.Error(err))
		return fmt.Errorf("failed to persist audit events: %w", err)
	}

	e.logger.Debug("flushed audit events",
		zap.String("transaction", uow.TransactionID()),
		zap.Int("events", len(events)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// Rollback discards everything queued on uow.
func (e *Engine) Rollback(uow *UnitOfWork) {
	if uow == nil {
		return
	}
	if n := uow.Len(); n > 0 {
		e.logger.Debug("discarding audit events on rollback",
			zap.String("transaction", uow.TransactionID()),
			zap.Int("events", n))
	}
	uow.reset()
}

// trackedFor returns the source definition when uow is tracking and source
// is audited.
func (e *Engine) trackedFor(uow *UnitOfWork, source string) (*Source, bool) {
	if uow == nil || uow.state != StateTracking {
		return nil, false
	}
	return e.Source(source)
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedEntity):
		return "malformed"
	case errors.Is(err, errResolve):
		return "resolver"
	default:
		return "other"
	}
}
