// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_RoundTrip(t *testing.T) {
	changed := map[string]any{"title": "New", "published": true}
	original := map[string]any{"title": "Old", "published": false}

	tests := []struct {
		name  string
		event func() *Event
	}{
		{"create", func() *Event { return NewCreate("tx-1", 13, "articles", changed, nil, "New") }},
		{"update", func() *Event { return NewUpdate("tx-1", 13, "articles", changed, original, "") }},
		{"delete", func() *Event { return NewDelete("tx-1", []any{1, 2}, "tags", nil, original, "t") }},
		{"update with empty sets", func() *Event {
			return NewUpdate("tx-1", 13, "articles", map[string]any{}, map[string]any{}, "")
		}},
		{"with parent and meta", func() *Event {
			e := NewUpdate("tx-2", "a-b", "comments", changed, original, "c")
			e.SetParentSourceName("articles")
			e.SetMetaInfo(map[string]any{"app_name": "blog", "user": nil})
			return e
		}},
		{"with empty meta", func() *Event {
			e := NewCreate("tx-3", 1, "articles", changed, nil, "")
			e.SetMetaInfo(map[string]any{})
			return e
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event()
			restored, err := Factory{}.Create(e.Record())
			require.NoError(t, err)
			assert.True(t, e.Equal(restored), "expected %+v, got %+v", e, restored)
		})
	}
}

func TestFactory_RestoresTimestamp(t *testing.T) {
	rec := Record{
		Transaction: "tx",
		Type:        "update",
		PrimaryKey:  1,
		Source:      "articles",
		Changed:     map[string]any{"title": "x"},
		Original:    map[string]any{"title": "y"},
		Timestamp:   "2015-04-12T20:20:21+00:00",
	}

	e, err := Factory{}.Create(rec)
	require.NoError(t, err)
	assert.Equal(t, "2015-04-12T20:20:21+00:00", e.Timestamp())
	assert.Empty(t, e.ParentSourceName())
	assert.Nil(t, e.MetaInfo())
}

func TestFactory_UnknownType(t *testing.T) {
	_, err := Factory{}.Create(Record{Type: "rename"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEventType)
	assert.Contains(t, err.Error(), "rename")
}

func TestFactory_DecodeJSONLine(t *testing.T) {
	line := []byte(`{"transaction":"tx","type":"delete","primary_key":[3,4],"source":"tags",` +
		`"parent_source":"articles","display_value":null,"changed":null,"original":{"name":"go"},` +
		`"meta":{"user":"alice"},"@timestamp":"2015-04-12T20:20:21+00:00"}`)

	e, err := Factory{}.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, KindDelete, e.Kind())
	assert.Equal(t, []any{3, 4}, e.ID())
	assert.Equal(t, "articles", e.ParentSourceName())
	assert.Nil(t, e.Changed())
	assert.Equal(t, map[string]any{"name": "go"}, e.Original())
	assert.Equal(t, map[string]any{"user": "alice"}, e.MetaInfo())

	reencoded, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, string(line), string(reencoded))
}

func TestFactory_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		event func() *Event
	}{
		{"create", func() *Event {
			return NewCreate("123", 50, "articles", map[string]any{"title": "foo", "author_id": 1}, nil, "foo")
		}},
		{"update", func() *Event {
			e := NewUpdate("123", []any{1, "a"}, "articles",
				map[string]any{"score": 2.5, "tags": []any{1, 2}, "rank": map[string]any{"pos": 3}},
				map[string]any{"score": 1.25, "tags": []any{}, "rank": map[string]any{"pos": 4}}, "")
			e.SetParentSourceName("authors")
			e.SetMetaInfo(map[string]any{"app_name": "blog", "user_id": 7, "ip": nil})
			return e
		}},
		{"delete", func() *Event {
			return NewDelete("123", 50, "articles", nil, map[string]any{"title": "foo", "author_id": -1}, "foo")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event()
			raw, err := json.Marshal(e)
			require.NoError(t, err)

			decoded, err := Factory{}.Decode(raw)
			require.NoError(t, err)
			assert.True(t, e.Equal(decoded), "expected %+v, got %+v", e, decoded)

			var doc map[string]any
			require.NoError(t, json.Unmarshal(raw, &doc))
			fromMap, err := Factory{}.FromMap(doc)
			require.NoError(t, err)
			assert.True(t, e.Equal(fromMap), "expected %+v, got %+v", e, fromMap)
		})
	}
}

func TestRecord_EmptyDisplayValueIsNull(t *testing.T) {
	e := NewCreate("tx", 1, "articles", map[string]any{"title": ""}, nil, "")

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"display_value":null`)
	assert.Contains(t, string(raw), `"parent_source":null`)

	decoded, err := Factory{}.Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, decoded.DisplayValue())
	assert.True(t, e.Equal(decoded))
}

func TestFactory_FromMap(t *testing.T) {
	doc := map[string]any{
		"transaction": "tx",
		"type":        "create",
		"primary_key": "uuid-1",
		"source":      "articles",
		"changed":     map[string]any{"title": "T"},
		"original":    nil,
		"@timestamp":  "2015-04-12T20:20:21+00:00",
	}

	e, err := Factory{}.FromMap(doc)
	require.NoError(t, err)
	assert.Equal(t, "uuid-1", e.ID())
	assert.Equal(t, map[string]any{"title": "T"}, e.Changed())
	assert.Nil(t, e.Original())
}
