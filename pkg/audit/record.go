// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownEventType is returned when a record carries a type that does not
// map to any event kind.
var ErrUnknownEventType = errors.New("unknown audit event type")

// Record is the flat storage form of an Event.
type Record struct {
	Transaction  string         `json:"transaction"`
	Type         string         `json:"type"`
	PrimaryKey   any            `json:"primary_key"`
	Source       string         `json:"source"`
	ParentSource *string        `json:"parent_source"`
	DisplayValue *string        `json:"display_value"`
	Changed      map[string]any `json:"changed"`
	Original     map[string]any `json:"original"`
	Meta         map[string]any `json:"meta"`
	Timestamp    string         `json:"@timestamp"`
}

// Record flattens the event. Empty parent source and display value are
// stored as null, so a display field holding "" is indistinguishable from one
// holding no value.
func (e *Event) Record() Record {
	rec := Record{
		Transaction: e.transactionID,
		Type:        string(e.kind),
		PrimaryKey:  e.id,
		Source:      e.source,
		Changed:     e.changed,
		Original:    e.original,
		Meta:        e.meta,
		Timestamp:   e.timestamp,
	}
	if e.parentSource != "" {
		parent := e.parentSource
		rec.ParentSource = &parent
	}
	if e.displayValue != "" {
		display := e.displayValue
		rec.DisplayValue = &display
	}
	return rec
}

// UnmarshalJSON decodes a record. Whole numbers in the primary key and in
// the changed, original and meta sets decode as int, other numbers as
// float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var rec plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return err
	}
	rec.PrimaryKey = normalizeNumbers(rec.PrimaryKey)
	rec.Changed = normalizeMap(rec.Changed)
	rec.Original = normalizeMap(rec.Original)
	rec.Meta = normalizeMap(rec.Meta)
	*r = Record(rec)
	return nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := strconv.Atoi(v.String()); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		for i := range v {
			v[i] = normalizeNumbers(v[i])
		}
		return v
	case map[string]any:
		return normalizeMap(v)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeNumbers(v)
	}
	return m
}

// MarshalJSON encodes the event in its Record form.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Record())
}

// Factory rebuilds events from stored records.
type Factory struct{}

// Create dispatches on the record type and restores the stored timestamp.
func (Factory) Create(rec Record) (*Event, error) {
	kind, err := ParseKind(rec.Type)
	if err != nil {
		return nil, err
	}

	var display string
	if rec.DisplayValue != nil {
		display = *rec.DisplayValue
	}

	event, err := Restore(kind, rec.Transaction, rec.PrimaryKey, rec.Source, rec.Changed, rec.Original, display, rec.Timestamp)
	if err != nil {
		return nil, err
	}
	if rec.ParentSource != nil {
		event.SetParentSourceName(*rec.ParentSource)
	}
	if rec.Meta != nil {
		event.SetMetaInfo(rec.Meta)
	}
	return event, nil
}

// FromMap rebuilds an event from a decoded generic document such as a
// search hit source.
func (f Factory) FromMap(doc map[string]any) (*Event, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit document: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode audit document: %w", err)
	}
	return f.Create(rec)
}

// Decode parses a JSON encoded record into an event.
func (f Factory) Decode(data []byte) (*Event, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode audit record: %w", err)
	}
	return f.Create(rec)
}
