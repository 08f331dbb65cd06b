// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/metrics"
)

// DailySuffixLayout is the date layout substituted for "%s" in index names.
const DailySuffixLayout = "2006.01.02"

// Config configures a Persister.
type Config struct {
	// Name identifies the persister in metrics and logs. Default: "elasticsearch"
	Name      string   `yaml:"name"`
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	APIKey    string   `yaml:"apiKey"`

	// Index is the target index. An empty index writes every event to an
	// index named after its source. A "%s" placeholder is replaced with
	// "-YYYY.MM.DD" of the event timestamp.
	Index string `yaml:"index"`

	// Refresh is passed to the bulk API ("true", "false", "wait_for").
	Refresh string `yaml:"refresh"`
}

// Option customizes a Persister.
type Option func(*Persister)

// WithClient sets the client instead of building one from the config.
func WithClient(client *elasticsearch.Client) Option {
	return func(p *Persister) {
		p.client = client
	}
}

// Persister writes every event as one document using the bulk API.
type Persister struct {
	name   string
	cfg    Config
	logger *zap.Logger

	once    sync.Once
	client  *elasticsearch.Client
	initErr error
}

// New returns a search index persister. The client is created on the first
// batch unless one is passed with WithClient.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Persister {
	name := cfg.Name
	if name == "" {
		name = "elasticsearch"
	}
	p := &Persister{
		name:   name,
		cfg:    cfg,
		logger: logger.Named("elasticsearch-persister"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Persister) connection() (*elasticsearch.Client, error) {
	p.once.Do(func() {
		if p.client != nil {
			return
		}
		p.client, p.initErr = elasticsearch.NewClient(elasticsearch.Config{
			Addresses: p.cfg.Addresses,
			Username:  p.cfg.Username,
			Password:  p.cfg.Password,
			APIKey:    p.cfg.APIKey,
		})
		if p.initErr != nil {
			p.initErr = fmt.Errorf("failed to create elasticsearch client: %w", p.initErr)
		}
	})
	return p.client, p.initErr
}

// IndexFor returns the index an event is written to.
func (p *Persister) IndexFor(event *audit.Event) string {
	index := p.cfg.Index
	if index == "" {
		index = event.Source()
	}
	if !strings.Contains(index, "%s") {
		return index
	}
	ts, err := event.Time()
	if err != nil {
		ts = time.Now()
	}
	return strings.Replace(index, "%s", "-"+ts.UTC().Format(DailySuffixLayout), 1)
}

// Document flattens an event into the indexed document.
func Document(event *audit.Event) map[string]any {
	var parent any
	if event.ParentSourceName() != "" {
		parent = event.ParentSourceName()
	}
	return map[string]any{
		"transaction":   event.TransactionID(),
		"type":          event.EventType(),
		"primary_key":   event.ID(),
		"source":        event.Source(),
		"parent_source": parent,
		"original":      formatTimes(event.Original()),
		"changed":       formatTimes(event.Changed()),
		"meta":          event.MetaInfo(),
		"@timestamp":    event.Timestamp(),
	}
}

// formatTimes renders time values with audit.TimeFormat, descending into
// nested associated rows.
func formatTimes(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = formatValue(v)
	}
	return out
}

func formatValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.Format(audit.TimeFormat)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(audit.TimeFormat)
	case map[string]any:
		return formatTimes(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = formatValue(item)
		}
		return out
	default:
		return v
	}
}

// BulkBody encodes the batch as a newline delimited bulk request.
func (p *Persister) BulkBody(events []*audit.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		action := map[string]any{"index": map[string]any{"_index": p.IndexFor(event)}}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("failed to encode bulk action: %w", err)
		}
		if err := enc.Encode(Document(event)); err != nil {
			return nil, fmt.Errorf("failed to encode audit document for %s: %w", event, err)
		}
	}
	return buf.Bytes(), nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Index  string `json:"_index"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// LogEvents indexes the batch with one bulk request. Any failed item fails
// the batch.
func (p *Persister) LogEvents(ctx context.Context, events []*audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	body, err := p.BulkBody(events)
	if err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "serialization").Inc()
		return err
	}

	client, err := p.connection()
	if err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "config").Inc()
		return err
	}

	opts := []func(*esapi.BulkRequest){client.Bulk.WithContext(ctx)}
	if p.cfg.Refresh != "" {
		opts = append(opts, client.Bulk.WithRefresh(p.cfg.Refresh))
	}

	start := time.Now()
	res, err := client.Bulk(bytes.NewReader(body), opts...)
	metrics.PersisterLatency.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "transport").Inc()
		p.logger.Warn("bulk request failed",
			zap.Error(err),
			zap.String("transaction", events[0].TransactionID()),
			zap.Int("batch_size", len(events)))
		return fmt.Errorf("failed to index audit batch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		metrics.PersisterErrors.WithLabelValues(p.name, "status").Inc()
		p.logger.Warn("bulk request rejected",
			zap.Int("status", res.StatusCode),
			zap.ByteString("body", raw),
			zap.Int("batch_size", len(events)))
		return fmt.Errorf("failed to index audit batch: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		metrics.PersisterErrors.WithLabelValues(p.name, "response").Inc()
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if parsed.Errors {
		var reasons []error
		for i, item := range parsed.Items {
			for _, result := range item {
				if result.Error != nil {
					reasons = append(reasons, fmt.Errorf("item %d (%s): %s: %s", i, result.Index, result.Error.Type, result.Error.Reason))
				}
			}
		}
		if len(reasons) == 0 {
			reasons = append(reasons, errors.New("bulk response reported errors"))
		}
		metrics.PersisterErrors.WithLabelValues(p.name, "item").Inc()
		p.logger.Warn("bulk request had failed items",
			zap.Errors("items", reasons),
			zap.Int("batch_size", len(events)))
		return fmt.Errorf("failed to index audit batch: %w", errors.Join(reasons...))
	}

	metrics.PersisterEventsWritten.WithLabelValues(p.name).Add(float64(len(events)))
	return nil
}
