// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/metrics"
)

// DefaultTable is the table events are inserted into when none is configured.
const DefaultTable = "audit_logs"

// Execer runs a statement. *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MetaField copies the meta value at Path (dot separated) into Column.
type MetaField struct {
	Path   string `yaml:"path"`
	Column string `yaml:"column"`
}

// Config configures a Persister.
type Config struct {
	// Name identifies the persister in metrics and logs. Default: "table"
	Name string `yaml:"name"`
	// Table is the target table. Default: "audit_logs"
	Table string `yaml:"table"`

	// PrimaryKeyStrategy selects how the event id is stored.
	// Default: StrategyAutomatic
	PrimaryKeyStrategy Strategy `yaml:"primaryKeyStrategy"`
	// PrimaryKeyColumnType is the SQL type of the primary_key column, used by
	// StrategyAutomatic and Schema. Default: "integer"
	PrimaryKeyColumnType string `yaml:"primaryKeyColumnType"`
	// PrimaryKeyParts is the number of primary_key_<n> columns Schema emits
	// for StrategyProperties. Default: 2
	PrimaryKeyParts int `yaml:"primaryKeyParts"`

	// RawFields passes changed, original and meta to the driver unencoded
	// instead of as JSON text.
	RawFields bool `yaml:"rawFields"`

	// ExtractMetaFields lists meta values copied into their own columns.
	ExtractMetaFields []MetaField `yaml:"extractMetaFields"`
	// ExtractAllMeta copies every top level meta key into a column of the
	// same name, after ExtractMetaFields.
	ExtractAllMeta bool `yaml:"extractAllMeta"`
	// KeepExtractedMetaFields keeps extracted values in the meta blob.
	KeepExtractedMetaFields bool `yaml:"keepExtractedMetaFields"`

	// DisableErrorLogging silences the log entry for rows that fail.
	DisableErrorLogging bool `yaml:"disableErrorLogging"`
}

// Persister inserts one row per event. Rows failing validation or insertion
// are logged and skipped; the rest of the batch continues and LogEvents
// returns nil.
type Persister struct {
	name   string
	cfg    Config
	db     Execer
	logger *zap.Logger
}

// New validates cfg and returns a relational persister writing through db.
func New(db Execer, cfg Config, logger *zap.Logger) (*Persister, error) {
	if db == nil {
		return nil, errors.New("table persister requires a database handle")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.PrimaryKeyStrategy == "" {
		cfg.PrimaryKeyStrategy = StrategyAutomatic
	}
	if !cfg.PrimaryKeyStrategy.Valid() {
		return nil, fmt.Errorf("unsupported primary key strategy: %q", cfg.PrimaryKeyStrategy)
	}
	if cfg.PrimaryKeyColumnType == "" {
		cfg.PrimaryKeyColumnType = "integer"
	}
	if cfg.PrimaryKeyParts <= 0 {
		cfg.PrimaryKeyParts = 2
	}
	for _, f := range cfg.ExtractMetaFields {
		if f.Path == "" {
			return nil, errors.New("extracted meta field needs a path")
		}
	}

	name := cfg.Name
	if name == "" {
		name = "table"
	}
	return &Persister{
		name:   name,
		cfg:    cfg,
		db:     db,
		logger: logger.Named("table-persister"),
	}, nil
}

// Config returns the effective configuration.
func (p *Persister) Config() Config {
	return p.cfg
}

// LogEvents inserts every event in order.
func (p *Persister) LogEvents(ctx context.Context, events []*audit.Event) error {
	for _, event := range events {
		r, err := p.buildRow(event)
		if err == nil {
			err = r.validate()
		}
		if err != nil {
			p.skip(r, "validation", err)
			continue
		}

		start := time.Now()
		query, args := p.insert(r)
		_, err = p.db.ExecContext(ctx, query, args...)
		metrics.PersisterLatency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
		if err != nil {
			p.skip(r, classifyInsertError(err), err)
			continue
		}
		metrics.PersisterEventsWritten.WithLabelValues(p.name).Inc()
	}
	return nil
}

func (p *Persister) skip(r *row, reason string, err error) {
	metrics.PersisterRowsSkipped.WithLabelValues(p.cfg.Table, reason).Inc()
	metrics.PersisterErrors.WithLabelValues(p.name, reason).Inc()
	if p.cfg.DisableErrorLogging {
		return
	}
	fields := []zap.Field{
		zap.Error(err),
		zap.String("table", p.cfg.Table),
		zap.String("reason", reason),
	}
	if r != nil {
		fields = append(fields, zap.Any("row", r.fields()))
	}
	p.logger.Error("failed to persist audit row", fields...)
}

// insert renders the statement for r.
func (p *Persister) insert(r *row) (string, []any) {
	names := make([]string, len(r.columns))
	placeholders := make([]string, len(r.columns))
	for i, c := range r.columns {
		names[i] = pq.QuoteIdentifier(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pq.QuoteIdentifier(p.cfg.Table),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "))
	return query, r.values
}

// classifyInsertError names the failure for metrics. Postgres errors use the
// SQLSTATE condition name.
func classifyInsertError(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return "connection"
	default:
		return "insert"
	}
}
