/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/metrics"
)

// DeliveryMode controls how durable a published batch is.
type DeliveryMode int

const (
	// DeliveryTransient waits for the partition leader only.
	DeliveryTransient DeliveryMode = 1
	// DeliveryPersistent waits for all in-sync replicas.
	DeliveryPersistent DeliveryMode = 2
)

const (
	DefaultExchange = "audits.persist"
	DefaultRouting  = "store"
)

// ErrClosed is returned by LogEvents after Close.
var ErrClosed = errors.New("kafka persister is closed")

// Config configures a Persister.
type Config struct {
	// Name identifies the persister in metrics and logs. Default: "kafka"
	Name string

	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Exchange is the topic batches are published to.
	// Default: "audits.persist"
	Exchange string

	// Routing is the message key of every published batch.
	// Default: "store"
	Routing string

	// DeliveryMode selects the acknowledgement level.
	// Default: DeliveryPersistent
	DeliveryMode DeliveryMode

	// TLS configuration for secure connections.
	TLS *TLSConfig

	// SASL authentication configuration.
	SASL *SASLConfig

	// WriteTimeout is the timeout for writing one batch.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CompressionCodec for message compression.
	// Valid values: "none", "gzip", "snappy", "lz4", "zstd"
	// Default: "snappy"
	CompressionCodec string
}

// MessageWriter is the subset of *kafka.Writer used by the persister.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Option customizes a Persister.
type Option func(*Persister)

// WithWriter sets the writer instead of building one from the config.
func WithWriter(w MessageWriter) Option {
	return func(p *Persister) {
		p.writer = w
	}
}

// Persister publishes every batch as a single Kafka message whose value is
// the JSON array of audit records.
type Persister struct {
	name   string
	cfg    Config
	logger *zap.Logger

	once    sync.Once
	writer  MessageWriter
	initErr error

	mu     sync.Mutex
	closed bool
}

// New validates cfg and returns a persister. The Kafka writer is created on
// the first batch.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Persister, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.Routing == "" {
		cfg.Routing = DefaultRouting
	}
	switch cfg.DeliveryMode {
	case 0:
		cfg.DeliveryMode = DeliveryPersistent
	case DeliveryTransient, DeliveryPersistent:
	default:
		return nil, fmt.Errorf("unsupported delivery mode: %d", cfg.DeliveryMode)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		if _, err := buildSASLMechanism(cfg.SASL); err != nil {
			return nil, err
		}
	}

	name := cfg.Name
	if name == "" {
		name = "kafka"
	}

	p := &Persister{
		name:   name,
		cfg:    cfg,
		logger: logger.Named("kafka-persister"),
	}
	for _, opt := range opts {
		opt(p)
	}

	logger.Info("Kafka audit persister created",
		zap.String("name", name),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("exchange", cfg.Exchange),
		zap.String("routing", cfg.Routing),
		zap.Int("delivery_mode", int(cfg.DeliveryMode)),
		zap.Bool("tls_enabled", cfg.TLS != nil && cfg.TLS.Enabled),
		zap.Bool("sasl_enabled", cfg.SASL != nil && cfg.SASL.Mechanism != ""))

	return p, nil
}

// requiredAcks maps the delivery mode onto Kafka acknowledgements.
func (m DeliveryMode) requiredAcks() kafka.RequiredAcks {
	if m == DeliveryTransient {
		return kafka.RequireOne
	}
	return kafka.RequireAll
}

func (p *Persister) connection() (MessageWriter, error) {
	p.once.Do(func() {
		if p.writer != nil {
			return
		}
		p.writer, p.initErr = newWriter(p.cfg, p.logger)
	})
	return p.writer, p.initErr
}

func newWriter(cfg Config, logger *zap.Logger) (*kafka.Writer, error) {
	transport := &kafka.Transport{}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			logger.Error("failed to build Kafka TLS config",
				zap.Error(err),
				zap.Strings("brokers", cfg.Brokers))
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		transport.TLS = tlsConfig
	}

	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Exchange,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           cfg.DeliveryMode.requiredAcks(),
		Compression:            compressionCodec(cfg.CompressionCodec, logger),
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}, nil
}

func compressionCodec(name string, logger *zap.Logger) kafka.Compression {
	switch name {
	case "none":
		return 0
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "snappy", "":
		return kafka.Snappy
	default:
		logger.Warn("unknown compression codec, defaulting to snappy",
			zap.String("codec", name))
		return kafka.Snappy
	}
}

// Message builds the Kafka message for one batch.
func (p *Persister) Message(events []*audit.Event) (kafka.Message, error) {
	value, err := json.Marshal(events)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal audit batch: %w", err)
	}

	headers := []kafka.Header{
		{Key: "event-count", Value: []byte(strconv.Itoa(len(events)))},
		{Key: "delivery-mode", Value: []byte(strconv.Itoa(int(p.cfg.DeliveryMode)))},
	}
	if len(events) > 0 {
		headers = append(headers, kafka.Header{Key: "transaction", Value: []byte(events[0].TransactionID())})
	}

	return kafka.Message{
		Key:     []byte(p.cfg.Routing),
		Value:   value,
		Headers: headers,
	}, nil
}

// LogEvents publishes the whole batch as one message.
func (p *Persister) LogEvents(ctx context.Context, events []*audit.Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.PersisterErrors.WithLabelValues(p.name, "closed").Inc()
		return ErrClosed
	}
	p.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	msg, err := p.Message(events)
	if err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "serialization").Inc()
		return err
	}

	writer, err := p.connection()
	if err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "config").Inc()
		return err
	}

	start := time.Now()
	if err := writer.WriteMessages(ctx, msg); err != nil {
		duration := time.Since(start)
		errorType := classifyKafkaError(err)

		metrics.PersisterErrors.WithLabelValues(p.name, errorType).Inc()
		metrics.PersisterLatency.WithLabelValues(p.name).Observe(duration.Seconds())

		logFields := []zap.Field{
			zap.Error(err),
			zap.String("error_type", errorType),
			zap.Duration("duration", duration),
			zap.String("transaction", events[0].TransactionID()),
			zap.Int("batch_size", len(events)),
		}
		switch errorType {
		case "auth", "authorization":
			p.logger.Error("Kafka authentication/authorization failed", logFields...)
		case "tls":
			p.logger.Error("Kafka TLS error", logFields...)
		default:
			p.logger.Warn("failed to publish audit batch to Kafka", logFields...)
		}

		return fmt.Errorf("failed to publish audit batch to Kafka (%s): %w", errorType, err)
	}

	metrics.PersisterLatency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	metrics.PersisterEventsWritten.WithLabelValues(p.name).Add(float64(len(events)))
	metrics.KafkaBatchesSent.WithLabelValues(p.cfg.Exchange).Inc()
	return nil
}

// Close closes the Kafka writer if one was created.
func (p *Persister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.logger.Info("closing Kafka audit persister", zap.String("name", p.name))

	// Mark the lazy init as done so a late LogEvents cannot open a writer.
	p.once.Do(func() {})
	if p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}
