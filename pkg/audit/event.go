// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"fmt"
	"reflect"
	"time"
)

// TimeFormat is the layout used for event timestamps and for time values
// written into changed/original sets.
const TimeFormat = "2006-01-02T15:04:05-07:00"

// Kind is the discriminant of an audit event.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	default:
		return false
	}
}

// ParseKind converts a stored type string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return k, nil
}

// Event is a single captured mutation of an entity.
//
// The kind is fixed at construction. Only the meta info and the parent source
// may change afterwards, and only until the event is handed to a persister.
type Event struct {
	kind          Kind
	transactionID string
	id            any
	source        string
	parentSource  string
	changed       map[string]any
	original      map[string]any
	displayValue  string
	timestamp     string
	meta          map[string]any
}

// NewCreate builds a create event. The original set is always nil.
func NewCreate(transactionID string, id any, source string, changed, original map[string]any, displayValue string) *Event {
	return newEvent(KindCreate, transactionID, id, source, changed, original, displayValue, now())
}

// NewUpdate builds an update event.
func NewUpdate(transactionID string, id any, source string, changed, original map[string]any, displayValue string) *Event {
	return newEvent(KindUpdate, transactionID, id, source, changed, original, displayValue, now())
}

// NewDelete builds a delete event. The changed set is always nil.
func NewDelete(transactionID string, id any, source string, changed, original map[string]any, displayValue string) *Event {
	return newEvent(KindDelete, transactionID, id, source, changed, original, displayValue, now())
}

// New builds an event of the given kind with a fresh timestamp.
func New(kind Kind, transactionID string, id any, source string, changed, original map[string]any, displayValue string) (*Event, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, kind)
	}
	return newEvent(kind, transactionID, id, source, changed, original, displayValue, now()), nil
}

// Restore rebuilds a previously persisted event keeping its stored timestamp.
func Restore(kind Kind, transactionID string, id any, source string, changed, original map[string]any, displayValue, timestamp string) (*Event, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, kind)
	}
	return newEvent(kind, transactionID, id, source, changed, original, displayValue, timestamp), nil
}

var now = func() string {
	return time.Now().Format(TimeFormat)
}

func newEvent(kind Kind, transactionID string, id any, source string, changed, original map[string]any, displayValue, timestamp string) *Event {
	switch kind {
	case KindCreate:
		original = nil
	case KindDelete:
		changed = nil
	}
	return &Event{
		kind:          kind,
		transactionID: transactionID,
		id:            collapseID(id),
		source:        source,
		changed:       changed,
		original:      original,
		displayValue:  displayValue,
		timestamp:     timestamp,
	}
}

// collapseID turns a single element composite key into its scalar.
func collapseID(id any) any {
	if ids, ok := id.([]any); ok && len(ids) == 1 {
		return ids[0]
	}
	return id
}

// Kind returns the event discriminant.
func (e *Event) Kind() Kind { return e.kind }

// EventType returns the discriminant as stored.
func (e *Event) EventType() string { return string(e.kind) }

func (e *Event) TransactionID() string { return e.transactionID }

// ID returns the primary key, a scalar or a []any for composite keys.
func (e *Event) ID() any { return e.id }

func (e *Event) Source() string { return e.source }

func (e *Event) ParentSourceName() string { return e.parentSource }

func (e *Event) Changed() map[string]any { return e.changed }

func (e *Event) Original() map[string]any { return e.original }

// DisplayValue returns the human readable label. Empty means no label.
func (e *Event) DisplayValue() string { return e.displayValue }

func (e *Event) Timestamp() string { return e.timestamp }

// Time parses the event timestamp.
func (e *Event) Time() (time.Time, error) {
	return time.Parse(TimeFormat, e.timestamp)
}

// MetaInfo returns the metadata attached to the event. It is nil until set.
func (e *Event) MetaInfo() map[string]any { return e.meta }

// SetMetaInfo replaces the metadata attached to the event.
func (e *Event) SetMetaInfo(meta map[string]any) { e.meta = meta }

// SetParentSourceName records the collection whose save produced this event.
func (e *Event) SetParentSourceName(name string) { e.parentSource = name }

// MergeMeta adds the given keys to the metadata. Keys already present keep
// their value.
func (e *Event) MergeMeta(data map[string]any) {
	merged := make(map[string]any, len(e.meta)+len(data))
	for k, v := range data {
		merged[k] = v
	}
	for k, v := range e.meta {
		merged[k] = v
	}
	e.meta = merged
}

// Equal reports whether both events carry identical attributes.
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return reflect.DeepEqual(*e, *other)
}

// String implements fmt.Stringer for log output.
func (e *Event) String() string {
	return fmt.Sprintf("%s %s/%v (transaction %s)", e.kind, e.source, e.id, e.transactionID)
}
