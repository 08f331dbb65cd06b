/*
SPDX-FileCopyrightText: 2026 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/auditlog/pkg/capture"
)

func TestWriteSourceTable(t *testing.T) {
	sources := []capture.Source{
		{
			Name:       "articles",
			PrimaryKey: []string{"id"},
			Columns: []capture.Column{
				{Name: "id", Type: "integer"},
				{Name: "title", Type: "string"},
				{Name: "modified", Type: "datetime"},
			},
			Associations:     []capture.Association{{Name: "Tags", Property: "tags", Kind: capture.AssociationMany}},
			AssociationsMode: capture.AssociationsAuditTrail,
			ForeignKeys:      []capture.ForeignKey{{Collection: "authors", Field: "name"}},
		},
		{
			Name:       "articles_tags",
			PrimaryKey: []string{"article_id", "tag_id"},
			Blacklist:  []string{"tag_id"},
			Columns:    []capture.Column{{Name: "article_id"}, {Name: "tag_id"}},
		},
	}

	buf := &bytes.Buffer{}
	WriteSourceTable(buf, sources, []string{"modified"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "PRIMARY_KEY")
	assert.Contains(t, lines[1], "id,title,tags")
	assert.NotContains(t, lines[1], "modified")
	assert.Contains(t, lines[1], "tags(many)")
	assert.Contains(t, lines[1], "audit-trail")
	assert.Contains(t, lines[1], "authors.name")
	assert.Contains(t, lines[2], "article_id,tag_id")
	assert.Contains(t, lines[2], " article_id ")
	assert.True(t, strings.HasSuffix(lines[2], "-"))
}

func TestWriteBatchTable(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteBatchTable(buf, []BatchRow{
		{Transaction: "tx-1", Events: 2, Sources: []string{"articles", "tags"}},
		{Transaction: "tx-2", Events: 1, Error: "circuit breaker is open"},
	})

	out := buf.String()
	assert.Contains(t, out, "TRANSACTION")
	assert.Contains(t, out, "articles,tags")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "failed: circuit breaker is open")
}

func TestWriteBatchTable_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	WriteBatchTable(buf, nil)
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
