// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ErrNoResolver is returned when a source declares foreign keys but the
// engine has no LabelResolver.
var ErrNoResolver = errors.New("no foreign key label resolver configured")

// LabelResolver looks up a friendly label for a referenced row.
type LabelResolver interface {
	Resolve(ctx context.Context, collection string, id any, field string) (any, error)
}

// ResolverFunc adapts a function to the LabelResolver interface.
type ResolverFunc func(ctx context.Context, collection string, id any, field string) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, collection string, id any, field string) (any, error) {
	return f(ctx, collection, id, field)
}

// ForeignKeyField returns the property a label for collection is stored
// under, e.g. "BlogAuthors" -> "blog_author". The raw id lives in the same
// name suffixed with "_id".
func ForeignKeyField(collection string) string {
	return underscore(inflection.Singular(collection))
}

func underscore(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '-' || r == ' ' {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
