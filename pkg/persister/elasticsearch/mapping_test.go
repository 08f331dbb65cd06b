// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/auditlog/pkg/capture"
)

func mappedColumns(t *testing.T, mapping map[string]any) map[string]any {
	t.Helper()
	props, ok := mapping["properties"].(map[string]any)
	require.True(t, ok)
	changed, ok := props["changed"].(map[string]any)
	require.True(t, ok)
	original, ok := props["original"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, changed, original)
	return changed["properties"].(map[string]any)
}

func TestColumnMapping(t *testing.T) {
	tests := []struct {
		typ  string
		want map[string]any
	}{
		{"uuid", map[string]any{"type": "text", "index": false, "null_value": "_null_"}},
		{"integer", map[string]any{"type": "integer", "null_value": nullNumber}},
		{"date", map[string]any{"type": "date", "format": "dateOptionalTime||basic_date||yyy-MM-dd", "null_value": "0001-01-01"}},
		{"datetime", map[string]any{
			"type":       "date",
			"format":     "basic_t_time_no_millis||dateOptionalTime||basic_date_time||ordinal_date_time_no_millis||yyyy-MM-dd HH:mm:ss||basic_date",
			"null_value": "0001-01-01 00:00:00",
		}},
		{"decimal", map[string]any{"type": "float", "null_value": nullNumber}},
		{"boolean", map[string]any{"type": "boolean"}},
		{"string", map[string]any{
			"type": "text",
			"fields": map[string]any{
				"col": map[string]any{"type": "text"},
				"raw": map[string]any{"type": "text", "index": false},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, ColumnMapping(capture.Column{Name: "col", Type: tt.typ}))
		})
	}
}

func TestMapping_FiltersColumns(t *testing.T) {
	src := &capture.Source{
		Name: "articles",
		Columns: []capture.Column{
			{Name: "id", Type: "integer"},
			{Name: "title", Type: "string"},
			{Name: "created", Type: "datetime"},
			{Name: "secret", Type: "string"},
		},
	}

	t.Run("blacklist", func(t *testing.T) {
		cols := mappedColumns(t, Mapping(src, []string{"created", "secret"}))
		assert.Len(t, cols, 2)
		assert.Contains(t, cols, "id")
		assert.Contains(t, cols, "title")
	})

	t.Run("whitelist then blacklist", func(t *testing.T) {
		wl := *src
		wl.Whitelist = []string{"title", "created"}
		cols := mappedColumns(t, Mapping(&wl, []string{"created"}))
		assert.Equal(t, []string{"title"}, keys(cols))
	})

	t.Run("source blacklist overrides", func(t *testing.T) {
		own := *src
		own.Blacklist = []string{}
		cols := mappedColumns(t, Mapping(&own, []string{"created"}))
		assert.Len(t, cols, 4)
	})
}

func TestMapping_BaseFields(t *testing.T) {
	props := Mapping(&capture.Source{Name: "x"}, nil)["properties"].(map[string]any)

	assert.Equal(t, "date", props["@timestamp"].(map[string]any)["type"])
	for _, field := range []string{"transaction", "type", "primary_key", "source", "parent_source"} {
		assert.Equal(t, map[string]any{"type": "text", "index": false}, props[field], field)
	}
	meta := props["meta"].(map[string]any)["properties"].(map[string]any)
	assert.Len(t, meta, 4)
	assert.Contains(t, meta, "app_name")
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
