// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"maps"
	"slices"

	"github.com/google/uuid"
)

// ErrMalformedEntity is returned when a snapshot does not match its source.
var ErrMalformedEntity = errors.New("malformed audited entity")

// Ref identifies one entity instance within a unit of work.
type Ref string

// NewRef returns a fresh entity reference.
func NewRef() Ref {
	return Ref(uuid.NewString())
}

// Snapshot is the data-access layer's view of one entity around a save or
// delete.
//
// Values holds the current field values. Original holds the prior value of
// fields that changed; a field missing from Original is unchanged. Dirty lists
// the fields written by this save. For new entities a nil Dirty means every
// field in Values is dirty.
//
// Associated rows are stored in Values (and Original) as *Snapshot for
// to-one associations and []*Snapshot for to-many associations.
//
// ParentSource names the source whose save or delete cascaded into this one.
// It is empty for entities saved or deleted directly.
type Snapshot struct {
	Ref          Ref
	New          bool
	Values       map[string]any
	Original     map[string]any
	Dirty        []string
	ParentSource string
}

// IsDirty reports whether field was written by this save.
func (s *Snapshot) IsDirty(field string) bool {
	if s.Dirty == nil && s.New {
		_, ok := s.Values[field]
		return ok
	}
	return slices.Contains(s.Dirty, field)
}

// Modified reports whether any field was written.
func (s *Snapshot) Modified() bool {
	if s.Dirty == nil && s.New {
		return len(s.Values) > 0
	}
	return len(s.Dirty) > 0
}

// Get returns the current value of field.
func (s *Snapshot) Get(field string) any {
	return s.Values[field]
}

// OriginalValue returns the value field had before the save.
func (s *Snapshot) OriginalValue(field string) any {
	if v, ok := s.Original[field]; ok {
		return v
	}
	return s.Values[field]
}

// OriginalValues returns all fields with prior values restored.
func (s *Snapshot) OriginalValues() map[string]any {
	out := maps.Clone(s.Values)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range s.Original {
		out[k] = v
	}
	return out
}
