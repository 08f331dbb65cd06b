package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/metrics"
	"github.com/telekom/auditlog/pkg/output"
	"github.com/telekom/auditlog/pkg/telemetry"
)

const maxRecordBytes = 8 << 20

// buildPipeline is replaced in tests.
var buildPipeline = Build

type replayOptions struct {
	enrich          bool
	dryRun          bool
	continueOnError bool
	outputFormat    string
}

// NewReplayCommand re-persists audit records read as JSON lines, for example
// from a log persister's output or an export of the audit table.
func NewReplayCommand() *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay [file]",
		Short: "Persist audit records read as JSON lines from a file or stdin",
		Long: "Reads one audit record per line. Consecutive records sharing a transaction\n" +
			"are persisted as one batch through the configured persister.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.Config()
			if err != nil {
				return err
			}
			format, err := output.ParseFormat(opts.outputFormat, output.FormatTable)
			if err != nil {
				return err
			}

			in := rt.input
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open replay input: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}

			batches, err := readBatches(in)
			if err != nil {
				return err
			}

			rows, replayErr := replay(cmd.Context(), cfg, rt.Logger(), batches, opts)

			if format == output.FormatTable {
				output.WriteBatchTable(rt.Writer(), rows)
			} else if err := output.WriteObject(rt.Writer(), format, rows); err != nil {
				return err
			}
			return replayErr
		},
	}

	cmd.Flags().BoolVar(&opts.enrich, "enrich", false, "Run the configured enrichers before persisting")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Decode and group records without persisting them")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep going after a batch fails")
	cmd.Flags().StringVarP(&opts.outputFormat, "output", "o", "", "Output format: table, json, yaml")
	return cmd
}

// readBatches decodes JSON lines and groups consecutive records of the same
// transaction. Blank lines are skipped.
func readBatches(r io.Reader) ([][]*audit.Event, error) {
	var (
		factory audit.Factory
		batches [][]*audit.Event
		current []*audit.Event
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		event, err := factory.Decode([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(current) > 0 && current[0].TransactionID() != event.TransactionID() {
			batches = append(batches, current)
			current = nil
		}
		current = append(current, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read replay input: %w", err)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

func replay(ctx context.Context, cfg *config.Config, logger *zap.Logger, batches [][]*audit.Event, opts replayOptions) ([]output.BatchRow, error) {
	rows := make([]output.BatchRow, 0, len(batches))
	for _, batch := range batches {
		rows = append(rows, output.BatchRow{
			Transaction: batch[0].TransactionID(),
			Events:      len(batch),
			Sources:     sourcesOf(batch),
		})
	}
	if opts.dryRun || len(batches) == 0 {
		return rows, nil
	}

	stopTracing, err := startTracing(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer stopTracing()

	pipeline, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("Failed to close audit pipeline", zap.Error(err))
		}
	}()

	var failed int
	for i, batch := range batches {
		if err := replayBatch(ctx, pipeline, batch, opts.enrich); err != nil {
			metrics.IngestBatches.WithLabelValues("replay", "failed").Inc()
			logger.Error("Failed to replay audit batch", zap.Error(err),
				zap.String("transaction", rows[i].Transaction), zap.Int("events", len(batch)))
			rows[i].Error = err.Error()
			failed++
			if !opts.continueOnError {
				return rows[:i+1], fmt.Errorf("transaction %s: %w", rows[i].Transaction, err)
			}
			continue
		}
		metrics.IngestBatches.WithLabelValues("replay", "accepted").Inc()
	}
	if failed > 0 {
		return rows, fmt.Errorf("%d of %d batches failed", failed, len(batches))
	}
	logger.Info("Replay finished", zap.Int("batches", len(batches)))
	return rows, nil
}

func replayBatch(ctx context.Context, pipeline *Pipeline, batch []*audit.Event, enrich bool) (err error) {
	ctx, span := telemetry.StartBatch(ctx, "auditlog.replay", batch)
	defer func() { telemetry.End(span, err) }()

	if enrich {
		if err := pipeline.Enrichers.Enrich(ctx, batch); err != nil {
			return err
		}
	}
	return pipeline.Persister.LogEvents(ctx, batch)
}

func sourcesOf(batch []*audit.Event) []string {
	var sources []string
	for _, event := range batch {
		if !slices.Contains(sources, event.Source()) {
			sources = append(sources, event.Source())
		}
	}
	return sources
}
