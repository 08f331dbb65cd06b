// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/telekom/auditlog/pkg/audit"
)

var errResolve = errors.New("failed to resolve foreign key label")

func (e *Engine) blacklistFor(src *Source) []string {
	if src.Blacklist != nil {
		return src.Blacklist
	}
	return e.blacklist
}

// saveEvent returns nil when the save produced nothing worth auditing.
func (e *Engine) saveEvent(ctx context.Context, uow *UnitOfWork, src *Source, snap *Snapshot) (*audit.Event, error) {
	if snap == nil || snap.Ref == "" {
		return nil, fmt.Errorf("%w: %s: entity reference is required", ErrMalformedEntity, src.Name)
	}

	changed := map[string]any{}
	for _, field := range TrackedFields(src, e.blacklistFor(src)) {
		if !snap.IsDirty(field) {
			continue
		}
		if v, ok := snap.Values[field]; ok {
			changed[field] = v
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	original := make(map[string]any, len(changed))
	for field := range changed {
		original[field] = snap.OriginalValue(field)
	}

	for _, a := range src.Associations {
		if _, ok := changed[a.Property]; !ok {
			continue
		}
		switch src.AssociationsMode {
		case AssociationsAuditTrail:
			if err := auditTrail(src, a, changed, original); err != nil {
				return nil, err
			}
		default:
			delete(changed, a.Property)
			delete(original, a.Property)
		}
	}

	changed = plainValues(changed)
	original = plainValues(original)

	if !snap.New && reflect.DeepEqual(changed, original) {
		return nil, nil
	}

	if err := e.resolveLabels(ctx, src, changed); err != nil {
		return nil, err
	}
	if !snap.New {
		if err := e.resolveLabels(ctx, src, original); err != nil {
			return nil, err
		}
	}

	id, err := primaryKey(src, snap)
	if err != nil {
		return nil, err
	}

	var event *audit.Event
	if snap.New {
		event = audit.NewCreate(uow.TransactionID(), id, src.Name, changed, nil, displayValue(src, snap))
	} else {
		event = audit.NewUpdate(uow.TransactionID(), id, src.Name, changed, original, displayValue(src, snap))
	}
	if snap.ParentSource != "" {
		event.SetParentSourceName(snap.ParentSource)
	}
	return event, nil
}

func (e *Engine) deleteEvent(uow *UnitOfWork, src *Source, snap *Snapshot) (*audit.Event, error) {
	if snap == nil || snap.Ref == "" {
		return nil, fmt.Errorf("%w: %s: entity reference is required", ErrMalformedEntity, src.Name)
	}

	original := snap.OriginalValues()
	for _, field := range e.blacklistFor(src) {
		delete(original, field)
	}
	if src.AssociationsMode != AssociationsAuditTrail {
		for _, a := range src.Associations {
			delete(original, a.Property)
		}
	}
	original = plainValues(original)

	id, err := primaryKey(src, snap)
	if err != nil {
		return nil, err
	}

	event := audit.NewDelete(uow.TransactionID(), id, src.Name, nil, original, displayValue(src, snap))
	if snap.ParentSource != "" {
		event.SetParentSourceName(snap.ParentSource)
	}
	return event, nil
}

// auditTrail keeps modified associated rows under the association property.
// Unmodified rows are dropped from both sides when the configured compare
// field pairs them with a current row. Single associations are dropped when
// the associated row was not modified.
func auditTrail(src *Source, a Association, changed, original map[string]any) error {
	switch a.Kind {
	case AssociationOne:
		current, err := asSnapshot(src, a, changed[a.Property])
		if err != nil {
			return err
		}
		prior, err := asSnapshot(src, a, original[a.Property])
		if err != nil {
			return err
		}
		row := prior
		if row == nil {
			row = current
		}
		if row != nil && !row.Modified() {
			delete(changed, a.Property)
			delete(original, a.Property)
			return nil
		}
		changed[a.Property] = rowValues(current)
		original[a.Property] = rowOriginalValues(prior)
		return nil

	default:
		current, err := asSnapshots(src, a, changed[a.Property])
		if err != nil {
			return err
		}
		prior, err := asSnapshots(src, a, original[a.Property])
		if err != nil {
			return err
		}
		current = slices.Clone(current)
		prior = slices.Clone(prior)

		field, compare := src.CompareFields[a.Property]
		kept := prior[:0]
		for _, row := range prior {
			if row.Modified() || !compare {
				kept = append(kept, row)
				continue
			}
			paired := slices.IndexFunc(current, func(c *Snapshot) bool {
				return reflect.DeepEqual(row.Get(field), c.Get(field))
			})
			if paired < 0 {
				kept = append(kept, row)
				continue
			}
			current = slices.Delete(current, paired, paired+1)
		}

		changedRows := make([]any, 0, len(current))
		for _, row := range current {
			changedRows = append(changedRows, rowValues(row))
		}
		originalRows := make([]any, 0, len(kept))
		for _, row := range kept {
			originalRows = append(originalRows, rowOriginalValues(row))
		}
		changed[a.Property] = changedRows
		original[a.Property] = originalRows
		return nil
	}
}

func asSnapshot(src *Source, a Association, v any) (*Snapshot, error) {
	switch row := v.(type) {
	case nil:
		return nil, nil
	case *Snapshot:
		return row, nil
	default:
		return nil, fmt.Errorf("%w: %s.%s: expected a single associated row, got %T", ErrMalformedEntity, src.Name, a.Property, v)
	}
}

func asSnapshots(src *Source, a Association, v any) ([]*Snapshot, error) {
	switch rows := v.(type) {
	case nil:
		return nil, nil
	case []*Snapshot:
		return rows, nil
	default:
		return nil, fmt.Errorf("%w: %s.%s: expected a list of associated rows, got %T", ErrMalformedEntity, src.Name, a.Property, v)
	}
}

func rowValues(row *Snapshot) any {
	if row == nil {
		return nil
	}
	return plainValues(row.Values)
}

func rowOriginalValues(row *Snapshot) any {
	if row == nil {
		return nil
	}
	return plainValues(row.OriginalValues())
}

// plainValues replaces nested snapshots by their field maps so that events
// only carry plain data.
func plainValues(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case *Snapshot:
			out[k] = rowValues(val)
		case []*Snapshot:
			rows := make([]any, 0, len(val))
			for _, row := range val {
				rows = append(rows, rowValues(row))
			}
			out[k] = rows
		default:
			out[k] = v
		}
	}
	return out
}

// resolveLabels adds the label of every configured foreign key whose id is
// present in values.
func (e *Engine) resolveLabels(ctx context.Context, src *Source, values map[string]any) error {
	for _, fk := range src.ForeignKeys {
		key := ForeignKeyField(fk.Collection)
		id, ok := values[key+"_id"]
		if !ok || id == nil {
			continue
		}
		label, err := e.resolver.Resolve(ctx, fk.Collection, id, fk.Field)
		if err != nil {
			return fmt.Errorf("%w: %s.%s_id=%v: %w", errResolve, src.Name, key, id, err)
		}
		values[key] = label
	}
	return nil
}

func primaryKey(src *Source, snap *Snapshot) ([]any, error) {
	id := make([]any, 0, len(src.PrimaryKey))
	for _, field := range src.PrimaryKey {
		v, ok := snap.Values[field]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %s: missing primary key field %q", ErrMalformedEntity, src.Name, field)
		}
		id = append(id, v)
	}
	return id, nil
}

func displayValue(src *Source, snap *Snapshot) string {
	fields := src.DisplayField
	if len(fields) == 0 {
		fields = src.PrimaryKey
	}
	if len(fields) == 1 {
		v := snap.Get(fields[0])
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := snap.Get(f); v != nil {
			parts = append(parts, fmt.Sprint(v))
		} else {
			parts = append(parts, "")
		}
	}
	return strings.Join(parts, ";")
}
