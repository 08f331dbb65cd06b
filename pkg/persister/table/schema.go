// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"
)

// Schema returns the Postgres DDL for the configured audit table, including
// extracted meta columns and indexes.
func (p *Persister) Schema() string {
	table := pq.QuoteIdentifier(p.cfg.Table)
	fieldType := "TEXT"
	if p.cfg.RawFields {
		fieldType = "JSONB"
	}

	columns := []string{
		"id BIGSERIAL PRIMARY KEY",
		`"transaction" VARCHAR(36) NOT NULL`,
		`"type" VARCHAR(7) NOT NULL`,
	}
	indexed := []string{"transaction", "type"}

	if p.cfg.PrimaryKeyStrategy == StrategyProperties {
		for i := 0; i < p.cfg.PrimaryKeyParts; i++ {
			name := fmt.Sprintf("primary_key_%d", i)
			columns = append(columns, fmt.Sprintf("%s %s NULL", pq.QuoteIdentifier(name), p.primaryKeyType()))
			indexed = append(indexed, name)
		}
	} else {
		columns = append(columns, fmt.Sprintf(`"primary_key" %s NULL`, p.primaryKeyType()))
		indexed = append(indexed, "primary_key")
	}

	columns = append(columns,
		`"display_value" VARCHAR(255) NULL`,
		`"source" VARCHAR(255) NOT NULL`,
		`"parent_source" VARCHAR(255) NULL`,
		`"username" VARCHAR(255) NULL`,
		fmt.Sprintf(`"original" %s NULL`, fieldType),
		fmt.Sprintf(`"changed" %s NULL`, fieldType),
		fmt.Sprintf(`"meta" %s NULL`, fieldType),
		`"created" TIMESTAMPTZ NULL`,
	)
	indexed = append(indexed, "display_value", "source", "parent_source", "username", "created")

	for _, f := range p.cfg.ExtractMetaFields {
		column := f.Column
		if column == "" {
			column = strings.ReplaceAll(f.Path, ".", "_")
		}
		if column == "username" || slices.Contains(baseColumns, column) {
			continue
		}
		columns = append(columns, fmt.Sprintf("%s TEXT NULL", pq.QuoteIdentifier(column)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);\n", table, strings.Join(columns, ",\n\t"))
	for _, column := range indexed {
		index := pq.QuoteIdentifier(fmt.Sprintf("%s_%s_idx", p.cfg.Table, column))
		fmt.Fprintf(&b, "CREATE INDEX IF NOT EXISTS %s ON %s (%s);\n", index, table, pq.QuoteIdentifier(column))
	}
	return b.String()
}

func (p *Persister) primaryKeyType() string {
	if p.cfg.PrimaryKeyStrategy == StrategySerialized {
		return "TEXT"
	}
	return strings.ToUpper(p.cfg.PrimaryKeyColumnType)
}
