// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"sync"
)

// Enricher annotates a batch of events with contextual metadata before it is
// persisted. Enrichers may only touch the meta info of an event.
type Enricher interface {
	Enrich(ctx context.Context, events []*Event) error
}

// EnricherFunc adapts a function to the Enricher interface.
type EnricherFunc func(ctx context.Context, events []*Event) error

func (f EnricherFunc) Enrich(ctx context.Context, events []*Event) error {
	return f(ctx, events)
}

// Enrichers runs registered enrichers in registration order.
type Enrichers struct {
	mu   sync.RWMutex
	list []Enricher
}

// NewEnrichers returns a registry holding the given enrichers.
func NewEnrichers(enrichers ...Enricher) *Enrichers {
	return &Enrichers{list: enrichers}
}

// Register appends enrichers to the chain.
func (r *Enrichers) Register(enrichers ...Enricher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, enrichers...)
}

// Len returns the number of registered enrichers.
func (r *Enrichers) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

// Enrich runs every enricher over the batch and stops at the first error.
func (r *Enrichers) Enrich(ctx context.Context, events []*Event) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	list := make([]Enricher, len(r.list))
	copy(list, r.list)
	r.mu.RUnlock()

	for i, e := range list {
		if err := e.Enrich(ctx, events); err != nil {
			return fmt.Errorf("enricher %d failed: %w", i, err)
		}
	}
	return nil
}

// ApplicationMetadata contributes the application name plus static extra
// fields to every event. app_name wins over an extra field of the same name.
func ApplicationMetadata(name string, extra map[string]any) Enricher {
	data := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		data[k] = v
	}
	data["app_name"] = name

	return EnricherFunc(func(_ context.Context, events []*Event) error {
		for _, event := range events {
			event.MergeMeta(data)
		}
		return nil
	})
}

// RequestMetadata contributes ip, url and user taken from the context when
// the batch is enriched. Values the context does not carry are stored as nil.
func RequestMetadata() Enricher {
	return EnricherFunc(func(ctx context.Context, events []*Event) error {
		info := RequestFromContext(ctx)
		data := map[string]any{
			"ip":   nilIfEmpty(info.ClientIP),
			"url":  nilIfEmpty(info.Target),
			"user": nilIfEmpty(info.User),
		}
		for _, event := range events {
			event.MergeMeta(data)
		}
		return nil
	})
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
