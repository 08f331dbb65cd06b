package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/capture"
	"github.com/telekom/auditlog/pkg/capture/rediscache"
	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/persister/elasticsearch"
	"github.com/telekom/auditlog/pkg/persister/kafka"
	"github.com/telekom/auditlog/pkg/persister/table"
)

// Pipeline is the persister, enrichers and capture engine built from one
// configuration.
type Pipeline struct {
	Persister audit.Persister
	Enrichers *audit.Enrichers
	Engine    *capture.Engine
	// Breaker is set when the circuit breaker is enabled.
	Breaker *audit.CircuitBreaker

	closers []func() error
}

// Build wires the configured persister, label resolver and capture engine.
// Every configured source is tracked by the engine.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{Enrichers: cfg.Enrichers()}

	var db *sql.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		p.closers = append(p.closers, db.Close)
	}

	persister, err := p.buildPersister(cfg, db, logger)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Persister = persister

	if cfg.Persister.CircuitBreaker.Enabled {
		cbCfg, err := cfg.CircuitBreakerConfig()
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		breaker := audit.NewBreakerPersister(cfg.Persister.Type, p.Persister, cbCfg, logger)
		p.Breaker = breaker.CircuitBreaker()
		p.Persister = breaker
	}

	var resolver capture.LabelResolver
	if db != nil {
		resolver = table.NewLabelResolver(db, cfg.Database.LabelKey)
	}
	if resolver != nil && cfg.LabelCache.URL != "" {
		opts, err := redis.ParseURL(cfg.LabelCache.URL)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("invalid labelCache url: %w", err)
		}
		client := redis.NewClient(opts)
		p.closers = append(p.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Label cache unreachable; lookups fall through to the database", zap.Error(err))
		}
		resolver = rediscache.New(client, resolver, logger, rediscache.WithTTL(cfg.LabelCacheTTL()))
	}

	engine, err := capture.NewEngine(capture.Config{
		Persister: p.Persister,
		Enrichers: p.Enrichers,
		Blacklist: cfg.Capture.Blacklist,
		Resolver:  resolver,
		Logger:    logger,
	})
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	for _, src := range cfg.Capture.Sources {
		if err := engine.Track(src); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to track source %s: %w", src.Name, err)
		}
	}
	p.Engine = engine

	logger.Info("Audit pipeline ready",
		zap.String("persister", cfg.Persister.Type),
		zap.Bool("circuit_breaker", p.Breaker != nil),
		zap.Bool("label_resolver", resolver != nil),
		zap.Int("sources", len(cfg.Capture.Sources)),
		zap.Int("enrichers", p.Enrichers.Len()))
	return p, nil
}

func (p *Pipeline) buildPersister(cfg *config.Config, db *sql.DB, logger *zap.Logger) (audit.Persister, error) {
	switch cfg.Persister.Type {
	case config.PersisterElasticsearch:
		return elasticsearch.New(cfg.Persister.Elasticsearch, logger), nil
	case config.PersisterKafka:
		kcfg, err := cfg.KafkaConfig()
		if err != nil {
			return nil, err
		}
		persister, err := kafka.New(kcfg, logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, persister.Close)
		return persister, nil
	case config.PersisterTable:
		if db == nil {
			return nil, errors.New("table persister requires database.dsn")
		}
		return table.New(db, cfg.Persister.Table, logger)
	case config.PersisterLog, "":
		return audit.NewLogPersister(logger), nil
	default:
		return nil, fmt.Errorf("unknown persister type %q", cfg.Persister.Type)
	}
}

// Close releases connections in reverse order of creation.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
