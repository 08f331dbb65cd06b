package cli

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/output"
)

const replayInput = `{"transaction":"tx-1","type":"create","primary_key":1,"source":"articles","changed":{"title":"a"},"@timestamp":"2026-03-05T10:00:00+00:00"}
{"transaction":"tx-1","type":"create","primary_key":[1,2],"source":"articles_tags","parent_source":"articles","changed":{"tag_id":2},"@timestamp":"2026-03-05T10:00:00+00:00"}

{"transaction":"tx-2","type":"delete","primary_key":7,"source":"comments","original":{"body":"spam"},"meta":{"user":"mod"},"@timestamp":"2026-03-05T11:00:00+00:00"}
`

// withPipeline makes replay and serve persist into persister.
func withPipeline(t *testing.T, persister audit.Persister) {
	t.Helper()
	orig := buildPipeline
	t.Cleanup(func() { buildPipeline = orig })
	buildPipeline = func(_ context.Context, cfg *config.Config, _ *zap.Logger) (*Pipeline, error) {
		return &Pipeline{Persister: persister, Enrichers: cfg.Enrichers()}, nil
	}
}

func TestReadBatches(t *testing.T) {
	batches, err := readBatches(strings.NewReader(replayInput))
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "articles", batches[0][1].ParentSourceName())
	assert.Equal(t, []any{1, 2}, batches[0][1].ID())
	assert.Equal(t, map[string]any{"tag_id": 2}, batches[0][1].Changed())
	assert.Equal(t, "2026-03-05T10:00:00+00:00", batches[0][0].Timestamp())
	assert.Len(t, batches[1], 1)
	assert.Equal(t, audit.KindDelete, batches[1][0].Kind())
}

func TestReadBatches_SameTransactionNotAdjacent(t *testing.T) {
	in := `{"transaction":"a","type":"create","primary_key":1,"source":"s"}
{"transaction":"b","type":"create","primary_key":2,"source":"s"}
{"transaction":"a","type":"create","primary_key":3,"source":"s"}`
	batches, err := readBatches(strings.NewReader(in))
	require.NoError(t, err)
	assert.Len(t, batches, 3)
}

func TestReadBatches_Errors(t *testing.T) {
	_, err := readBatches(strings.NewReader("{\"transaction\":\"a\",\"type\":\"create\",\"source\":\"s\"}\nnot json\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = readBatches(strings.NewReader(`{"transaction":"a","type":"purge","source":"s"}`))
	assert.ErrorIs(t, err, audit.ErrUnknownEventType)
}

func TestReplayCommand_Stdin(t *testing.T) {
	persister := audit.NewMemoryPersister()
	withPipeline(t, persister)

	out, err := execute(t, writeConfig(t, testConfig), replayInput, "replay")
	require.NoError(t, err)

	batches := persister.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 2)
	assert.Nil(t, batches[0][0].MetaInfo(), "records are not enriched by default")
	assert.Contains(t, out, "tx-1")
	assert.Contains(t, out, "articles,articles_tags")
}

func TestReplayCommand_FileWithEnrich(t *testing.T) {
	persister := audit.NewMemoryPersister()
	withPipeline(t, persister)
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(replayInput), 0o600))

	out, err := execute(t, writeConfig(t, testConfig), "", "replay", path, "--enrich", "-o", "json")
	require.NoError(t, err)

	var rows []output.BatchRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, output.BatchRow{Transaction: "tx-2", Events: 1, Sources: []string{"comments"}}, rows[1])

	events := persister.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "blog", events[0].MetaInfo()["app_name"])
	assert.Equal(t, "mod", events[2].MetaInfo()["user"], "existing meta wins")
}

func TestReplayCommand_DryRun(t *testing.T) {
	persister := audit.NewMemoryPersister()
	withPipeline(t, persister)

	out, err := execute(t, writeConfig(t, testConfig), replayInput, "replay", "--dry-run")
	require.NoError(t, err)
	assert.Empty(t, persister.Batches())
	assert.Contains(t, out, "tx-2")
}

func TestReplayCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantErr  string
		wantRows int
	}{
		{name: "stops at first failure", args: []string{"replay", "-o", "json"}, wantErr: "transaction tx-1", wantRows: 1},
		{name: "continue on error", args: []string{"replay", "-o", "json", "--continue-on-error"}, wantErr: "2 of 2 batches failed", wantRows: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persister := audit.NewMemoryPersister()
			persister.FailWith(errors.New("bulk rejected"))
			withPipeline(t, persister)

			out, err := execute(t, writeConfig(t, testConfig), replayInput, tt.args...)
			require.ErrorContains(t, err, tt.wantErr)

			var rows []output.BatchRow
			require.NoError(t, json.Unmarshal([]byte(out), &rows))
			require.Len(t, rows, tt.wantRows)
			assert.Equal(t, "bulk rejected", rows[0].Error)
		})
	}
}

func TestReplayCommand_MissingFile(t *testing.T) {
	_, err := execute(t, writeConfig(t, testConfig), "", "replay", filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorContains(t, err, "failed to open replay input")
}

func TestReplayBatch_RecordsSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	batches, err := readBatches(strings.NewReader(replayInput))
	require.NoError(t, err)

	persister := audit.NewMemoryPersister()
	pipeline := &Pipeline{Persister: persister, Enrichers: audit.NewEnrichers()}
	require.NoError(t, replayBatch(context.Background(), pipeline, batches[0], false))

	persister.FailWith(errors.New("bulk rejected"))
	require.Error(t, replayBatch(context.Background(), pipeline, batches[1], false))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "auditlog.replay", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("audit.transaction", "tx-1"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "bulk rejected", spans[1].Status().Description)
}

func TestReplayCommand_WithTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	persister := audit.NewMemoryPersister()
	withPipeline(t, persister)
	cfg := testConfig + "telemetry:\n  enabled: true\n  exporter: none\n"

	_, err := execute(t, writeConfig(t, cfg), replayInput, "replay")
	require.NoError(t, err)
	assert.Len(t, persister.Batches(), 2)
}
