// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidSource is returned when a source definition cannot be tracked.
var ErrInvalidSource = errors.New("invalid audit source")

// AssociationsMode selects how association properties end up in an event.
type AssociationsMode string

const (
	// AssociationsRemove strips association properties. Associated rows are
	// audited through their own events.
	AssociationsRemove AssociationsMode = "remove"
	// AssociationsAuditTrail keeps modified associated rows nested under the
	// association property.
	AssociationsAuditTrail AssociationsMode = "audit-trail"
)

// AssociationKind tells whether an association holds one row or many.
type AssociationKind string

const (
	AssociationOne  AssociationKind = "one"
	AssociationMany AssociationKind = "many"
)

// DefaultBlacklist is used when neither the engine nor the source configure one.
var DefaultBlacklist = []string{"created", "modified"}

// Column is a declared field of a source.
type Column struct {
	Name string `yaml:"name"`
	// Type is the storage type, e.g. integer, string, uuid, datetime.
	Type string `yaml:"type"`
}

// Association is a relation whose rows are exposed under Property.
type Association struct {
	Name     string          `yaml:"name"`
	Property string          `yaml:"property"`
	Kind     AssociationKind `yaml:"kind"`
}

// ForeignKey resolves <singular collection>_id to a label read from Field
// of the referenced collection.
type ForeignKey struct {
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
}

// Source describes an audited collection.
type Source struct {
	Name         string        `yaml:"name"`
	PrimaryKey   []string      `yaml:"primaryKey"`
	Columns      []Column      `yaml:"columns"`
	Associations []Association `yaml:"associations"`
	// DisplayField names the fields joined with ";" into the display value.
	// Defaults to the primary key.
	DisplayField []string `yaml:"displayField"`
	Whitelist    []string `yaml:"whitelist"`
	// Blacklist overrides the engine blacklist when non-nil.
	Blacklist        []string         `yaml:"blacklist"`
	ForeignKeys      []ForeignKey     `yaml:"foreignKeys"`
	AssociationsMode AssociationsMode `yaml:"associationsMode"`
	// CompareFields maps an association property to the field used to pair
	// unmodified associated rows in audit-trail mode.
	CompareFields map[string]string `yaml:"compareFields"`
}

// Validate checks the definition and fills defaults.
func (s *Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSource)
	}
	if len(s.PrimaryKey) == 0 {
		return fmt.Errorf("%w: %s: primary key is required", ErrInvalidSource, s.Name)
	}
	switch s.AssociationsMode {
	case "":
		s.AssociationsMode = AssociationsRemove
	case AssociationsRemove, AssociationsAuditTrail:
	default:
		return fmt.Errorf("%w: %s: unknown associations mode %q", ErrInvalidSource, s.Name, s.AssociationsMode)
	}
	s.Associations = slices.Clone(s.Associations)
	for i, a := range s.Associations {
		if a.Property == "" {
			return fmt.Errorf("%w: %s: association %q has no property", ErrInvalidSource, s.Name, a.Name)
		}
		switch a.Kind {
		case "":
			s.Associations[i].Kind = AssociationMany
		case AssociationOne, AssociationMany:
		default:
			return fmt.Errorf("%w: %s: association %q has unknown kind %q", ErrInvalidSource, s.Name, a.Name, a.Kind)
		}
	}
	for property := range s.CompareFields {
		if !slices.Contains(s.associationProperties(), property) {
			return fmt.Errorf("%w: %s: compare field set for unknown association property %q", ErrInvalidSource, s.Name, property)
		}
	}
	for _, fk := range s.ForeignKeys {
		if fk.Collection == "" || fk.Field == "" {
			return fmt.Errorf("%w: %s: foreign key needs collection and field", ErrInvalidSource, s.Name)
		}
	}
	return nil
}

// ColumnNames returns the declared column names in order.
func (s *Source) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (s *Source) associationProperties() []string {
	props := make([]string, 0, len(s.Associations))
	for _, a := range s.Associations {
		props = append(props, a.Property)
	}
	return props
}

func (s *Source) association(property string) (Association, bool) {
	for _, a := range s.Associations {
		if a.Property == property {
			return a, true
		}
	}
	return Association{}, false
}

// TrackedFields resolves the fields eligible for diffing. An explicit
// whitelist restricts the set; otherwise all columns and association
// properties are tracked. Blacklisted fields are always removed.
func TrackedFields(s *Source, blacklist []string) []string {
	var fields []string
	if len(s.Whitelist) > 0 {
		fields = slices.Clone(s.Whitelist)
	} else {
		fields = append(s.ColumnNames(), s.associationProperties()...)
	}

	out := fields[:0]
	for _, f := range fields {
		if !slices.Contains(blacklist, f) && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
