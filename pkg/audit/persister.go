// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Persister writes one ordered batch of events. A returned error means the
// batch as a whole failed; persisters do not report partial progress.
// Implementations must be safe for concurrent use.
type Persister interface {
	LogEvents(ctx context.Context, events []*Event) error
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(ctx context.Context, events []*Event) error

func (f PersisterFunc) LogEvents(ctx context.Context, events []*Event) error {
	return f(ctx, events)
}

// LogPersister writes audit events to a structured logger.
type LogPersister struct {
	logger *zap.Logger
}

// NewLogPersister creates a new LogPersister.
func NewLogPersister(logger *zap.Logger) *LogPersister {
	return &LogPersister{logger: logger.Named("audit")}
}

// LogEvents logs every event of the batch.
func (p *LogPersister) LogEvents(_ context.Context, events []*Event) error {
	for _, event := range events {
		fields := []zap.Field{
			zap.String("transaction", event.TransactionID()),
			zap.String("type", event.EventType()),
			zap.Any("primary_key", event.ID()),
			zap.String("source", event.Source()),
			zap.String("timestamp", event.Timestamp()),
		}
		if event.ParentSourceName() != "" {
			fields = append(fields, zap.String("parent_source", event.ParentSourceName()))
		}
		if event.DisplayValue() != "" {
			fields = append(fields, zap.String("display_value", event.DisplayValue()))
		}
		if event.Changed() != nil {
			fields = append(fields, zap.Any("changed", event.Changed()))
		}
		if event.Original() != nil {
			fields = append(fields, zap.Any("original", event.Original()))
		}
		if event.MetaInfo() != nil {
			fields = append(fields, zap.Any("meta", event.MetaInfo()))
		}
		p.logger.Info("audit event", fields...)
	}
	return nil
}

// MultiPersister hands every batch to several persisters in order.
type MultiPersister struct {
	persisters []Persister
}

// NewMultiPersister creates a persister that fans out to all given persisters.
func NewMultiPersister(persisters ...Persister) *MultiPersister {
	return &MultiPersister{persisters: persisters}
}

// LogEvents writes the batch to every persister and joins their errors.
func (m *MultiPersister) LogEvents(ctx context.Context, events []*Event) error {
	var errs []error
	for _, p := range m.persisters {
		if err := p.LogEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryPersister keeps every batch in memory. Useful for dry runs and tests.
type MemoryPersister struct {
	mu      sync.Mutex
	batches [][]*Event
	err     error
}

// NewMemoryPersister creates an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// LogEvents records the batch, or returns the configured failure.
func (m *MemoryPersister) LogEvents(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	batch := make([]*Event, len(events))
	copy(batch, events)
	m.batches = append(m.batches, batch)
	return nil
}

// FailWith makes subsequent LogEvents calls return err. Pass nil to recover.
func (m *MemoryPersister) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Batches returns every batch received so far.
func (m *MemoryPersister) Batches() [][]*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*Event, len(m.batches))
	copy(out, m.batches)
	return out
}

// Events returns all received events flattened in arrival order.
func (m *MemoryPersister) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// Reset drops all recorded batches.
func (m *MemoryPersister) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = nil
}
