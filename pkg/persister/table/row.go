// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/telekom/auditlog/pkg/audit"
)

// ErrInvalidRow is returned for rows rejected before insertion.
var ErrInvalidRow = errors.New("invalid audit row")

// Strategy selects how an event id is stored.
type Strategy string

const (
	// StrategyAutomatic stores scalar ids as they are. Composite ids are
	// stored raw when the column is an array type and as JSON otherwise.
	StrategyAutomatic Strategy = "automatic"
	// StrategyRaw stores the id as it is. Composite ids bind as arrays.
	StrategyRaw Strategy = "raw"
	// StrategySerialized stores the JSON encoding of the id.
	StrategySerialized Strategy = "serialized"
	// StrategyProperties stores each part of the id in primary_key_<n>.
	StrategyProperties Strategy = "properties"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAutomatic, StrategyRaw, StrategySerialized, StrategyProperties:
		return true
	}
	return false
}

const (
	maxTypeLength  = 7
	maxLabelLength = 255
)

var baseColumns = []string{
	"transaction", "type", "primary_key", "display_value", "source",
	"parent_source", "original", "changed", "meta", "created",
}

// row is one insert. columns and values are parallel.
type row struct {
	transaction  string
	kind         string
	source       string
	displayValue string
	parentSource string

	columns []string
	values  []any
}

func (r *row) set(column string, value any) {
	if i := slices.Index(r.columns, column); i >= 0 {
		r.values[i] = value
		return
	}
	r.columns = append(r.columns, column)
	r.values = append(r.values, value)
}

func (r *row) fields() map[string]any {
	out := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		out[c] = r.values[i]
	}
	return out
}

func (r *row) validate() error {
	var problems []string
	if r.transaction == "" {
		problems = append(problems, "transaction is required")
	}
	if !audit.Kind(r.kind).Valid() || utf8.RuneCountInString(r.kind) > maxTypeLength {
		problems = append(problems, fmt.Sprintf("type %q is invalid", r.kind))
	}
	if r.source == "" {
		problems = append(problems, "source is required")
	}
	if utf8.RuneCountInString(r.source) > maxLabelLength {
		problems = append(problems, "source exceeds 255 characters")
	}
	if utf8.RuneCountInString(r.displayValue) > maxLabelLength {
		problems = append(problems, "display_value exceeds 255 characters")
	}
	if utf8.RuneCountInString(r.parentSource) > maxLabelLength {
		problems = append(problems, "parent_source exceeds 255 characters")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRow, strings.Join(problems, "; "))
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (p *Persister) buildRow(event *audit.Event) (*row, error) {
	r := &row{
		transaction:  event.TransactionID(),
		kind:         event.EventType(),
		source:       event.Source(),
		displayValue: event.DisplayValue(),
		parentSource: event.ParentSourceName(),
	}

	r.set("transaction", r.transaction)
	r.set("type", r.kind)
	if err := p.setPrimaryKey(r, event.ID()); err != nil {
		return r, err
	}
	r.set("display_value", nullable(r.displayValue))
	r.set("source", r.source)
	r.set("parent_source", nullable(r.parentSource))

	original, err := p.encode(event.Original())
	if err != nil {
		return r, fmt.Errorf("failed to encode original: %w", err)
	}
	r.set("original", original)
	changed, err := p.encode(event.Changed())
	if err != nil {
		return r, fmt.Errorf("failed to encode changed: %w", err)
	}
	r.set("changed", changed)

	var created any
	if ts, err := event.Time(); err == nil {
		created = ts
	}
	r.set("created", created)

	meta, err := p.extractMeta(r, event.MetaInfo())
	if err != nil {
		return r, err
	}
	encoded, err := p.encode(meta)
	if err != nil {
		return r, fmt.Errorf("failed to encode meta: %w", err)
	}
	r.set("meta", encoded)
	return r, nil
}

func (p *Persister) setPrimaryKey(r *row, id any) error {
	parts, composite := id.([]any)

	strategy := p.cfg.PrimaryKeyStrategy
	if strategy == StrategyAutomatic {
		strategy = StrategyRaw
		if composite && !isArrayType(p.cfg.PrimaryKeyColumnType) {
			strategy = StrategySerialized
		}
	}

	switch strategy {
	case StrategySerialized:
		data, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("failed to encode primary key: %w", err)
		}
		r.set("primary_key", string(data))
	case StrategyProperties:
		if !composite {
			parts = []any{id}
		}
		for i, part := range parts {
			r.set(fmt.Sprintf("primary_key_%d", i), part)
		}
	default:
		if composite {
			r.set("primary_key", pq.Array(parts))
		} else {
			r.set("primary_key", id)
		}
	}
	return nil
}

func isArrayType(columnType string) bool {
	t := strings.ToLower(strings.TrimSpace(columnType))
	return strings.HasSuffix(t, "[]") || t == "array"
}

func (p *Persister) encode(values map[string]any) (any, error) {
	if values == nil {
		return nil, nil
	}
	if p.cfg.RawFields {
		return values, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (p *Persister) encodeValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		if p.cfg.RawFields {
			return v, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return v, nil
	}
}

// extractMeta copies configured meta values into their own columns and
// returns the meta blob to store.
func (p *Persister) extractMeta(r *row, meta map[string]any) (map[string]any, error) {
	if len(p.cfg.ExtractMetaFields) == 0 && !p.cfg.ExtractAllMeta {
		return meta, nil
	}
	remaining := copyMap(meta)

	for _, f := range p.cfg.ExtractMetaFields {
		column := f.Column
		if column == "" {
			column = strings.ReplaceAll(f.Path, ".", "_")
		}
		value, found := lookup(meta, f.Path)
		encoded, err := p.encodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode meta field %s: %w", f.Path, err)
		}
		r.set(column, encoded)
		if found && !p.cfg.KeepExtractedMetaFields {
			remove(remaining, f.Path)
		}
	}

	if p.cfg.ExtractAllMeta {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if slices.Contains(baseColumns, k) || slices.Contains(r.columns, k) {
				continue
			}
			encoded, err := p.encodeValue(meta[k])
			if err != nil {
				return nil, fmt.Errorf("failed to encode meta field %s: %w", k, err)
			}
			r.set(k, encoded)
			if !p.cfg.KeepExtractedMetaFields {
				delete(remaining, k)
			}
		}
	}

	if meta == nil {
		return nil, nil
	}
	return remaining, nil
}

func lookup(m map[string]any, path string) (any, bool) {
	var current any = m
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func remove(m map[string]any, path string) {
	keys := strings.Split(path, ".")
	node := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := node[key].(map[string]any)
		if !ok {
			return
		}
		node = next
	}
	delete(node, keys[len(keys)-1])
}

// copyMap copies nested maps so removals leave the event untouched.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
