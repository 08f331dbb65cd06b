// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"slices"
	"strings"

	"github.com/telekom/auditlog/pkg/capture"
)

const (
	timestampFormat = "basic_t_time_no_millis||dateOptionalTime||basic_date_time||ordinal_date_time_no_millis||yyyy-MM-dd HH:mm:ss"
	dateFormat      = "dateOptionalTime||basic_date||yyy-MM-dd"
	// nullNumber is the sentinel indexed for null numeric columns.
	nullNumber = -2147483648
)

func unindexedText() map[string]any {
	return map[string]any{"type": "text", "index": false}
}

// Mapping builds the index mapping for the documents of src. Columns are
// restricted to the source whitelist when one is set; blacklisted columns are
// omitted. The source blacklist overrides blacklist when non-nil.
func Mapping(src *capture.Source, blacklist []string) map[string]any {
	if src.Blacklist != nil {
		blacklist = src.Blacklist
	}

	columns := make(map[string]any, len(src.Columns))
	for _, col := range src.Columns {
		if len(src.Whitelist) > 0 && !slices.Contains(src.Whitelist, col.Name) {
			continue
		}
		if slices.Contains(blacklist, col.Name) {
			continue
		}
		columns[col.Name] = ColumnMapping(col)
	}

	return map[string]any{
		"properties": map[string]any{
			"@timestamp":    map[string]any{"type": "date", "format": timestampFormat},
			"transaction":   unindexedText(),
			"type":          unindexedText(),
			"primary_key":   unindexedText(),
			"source":        unindexedText(),
			"parent_source": unindexedText(),
			"original":      map[string]any{"properties": columns},
			"changed":       map[string]any{"properties": columns},
			"meta": map[string]any{
				"properties": map[string]any{
					"ip":       unindexedText(),
					"url":      unindexedText(),
					"user":     unindexedText(),
					"app_name": unindexedText(),
				},
			},
		},
	}
}

// ColumnMapping returns the field mapping for one column based on its type.
func ColumnMapping(col capture.Column) map[string]any {
	switch strings.ToLower(col.Type) {
	case "uuid":
		return map[string]any{"type": "text", "index": false, "null_value": "_null_"}
	case "integer", "biginteger", "smallinteger", "tinyinteger":
		return map[string]any{"type": "integer", "null_value": nullNumber}
	case "date":
		return map[string]any{"type": "date", "format": dateFormat, "null_value": "0001-01-01"}
	case "datetime", "timestamp":
		return map[string]any{
			"type":       "date",
			"format":     timestampFormat + "||basic_date",
			"null_value": "0001-01-01 00:00:00",
		}
	case "float", "decimal":
		return map[string]any{"type": "float", "null_value": nullNumber}
	case "boolean":
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{
			"type": "text",
			"fields": map[string]any{
				col.Name: map[string]any{"type": "text"},
				"raw":    unindexedText(),
			},
		}
	}
}
