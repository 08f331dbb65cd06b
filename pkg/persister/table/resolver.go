// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Queryer runs a single row query. *sql.DB and *sql.Tx satisfy it.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LabelResolver reads foreign key labels from the referenced table. The
// collection name is used as the table name.
type LabelResolver struct {
	db        Queryer
	keyColumn string
}

// NewLabelResolver returns a resolver matching rows on keyColumn ("id" when empty).
func NewLabelResolver(db Queryer, keyColumn string) *LabelResolver {
	if keyColumn == "" {
		keyColumn = "id"
	}
	return &LabelResolver{db: db, keyColumn: keyColumn}
}

func labelQuery(collection, field, keyColumn string) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 LIMIT 1",
		pq.QuoteIdentifier(field), pq.QuoteIdentifier(collection), pq.QuoteIdentifier(keyColumn))
}

// Resolve implements capture.LabelResolver. A missing row resolves to nil.
func (r *LabelResolver) Resolve(ctx context.Context, collection string, id any, field string) (any, error) {
	var label any
	err := r.db.QueryRowContext(ctx, labelQuery(collection, field, r.keyColumn), id).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.%s for %v: %w", collection, field, id, err)
	}
	if b, ok := label.([]byte); ok {
		return string(b), nil
	}
	return label, nil
}
