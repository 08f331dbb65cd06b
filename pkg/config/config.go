package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/capture"
	"github.com/telekom/auditlog/pkg/persister/elasticsearch"
	"github.com/telekom/auditlog/pkg/persister/kafka"
	"github.com/telekom/auditlog/pkg/persister/table"
	"github.com/telekom/auditlog/pkg/telemetry"
)

const (
	// DefaultPath is read when no path is given and AUDITLOG_CONFIG_PATH is unset.
	DefaultPath = "./auditlog.yaml"
	// PathEnv overrides DefaultPath.
	PathEnv = "AUDITLOG_CONFIG_PATH"
)

// Persister types.
const (
	PersisterElasticsearch = "elasticsearch"
	PersisterKafka         = "kafka"
	PersisterTable         = "table"
	PersisterLog           = "log"
)

var persisterTypes = []string{PersisterElasticsearch, PersisterKafka, PersisterTable, PersisterLog}

var telemetryExporters = []string{"otlp", "stdout", "none"}

type Config struct {
	// Debug switches to the development logger.
	Debug       bool        `yaml:"debug"`
	Application Application `yaml:"application"`
	Capture     Capture     `yaml:"capture"`
	Persister   Persister   `yaml:"persister"`
	Database    Database    `yaml:"database"`
	LabelCache  LabelCache  `yaml:"labelCache"`
	Server      Server      `yaml:"server"`
	Telemetry   Telemetry   `yaml:"telemetry"`
}

// Telemetry configures OpenTelemetry tracing of ingest and replay batches.
type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is otlp, stdout or none. Default: otlp
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	// SamplingRate is the sampled share of root traces. Default: 1
	SamplingRate float64 `yaml:"samplingRate"`
}

// Server configures the ingest HTTP server started by "auditlog serve".
type Server struct {
	// ListenAddress is the host:port to bind. Default: ":8080"
	ListenAddress string `yaml:"listenAddress"`
	TLSCertFile   string `yaml:"tlsCertFile"`
	TLSKeyFile    string `yaml:"tlsKeyFile"`
	// TrustedProxies are passed to gin for client IP resolution.
	TrustedProxies []string `yaml:"trustedProxies"`
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string `yaml:"allowedOrigins"`
	// UserKeys are the gin context keys the acting user is read from.
	// Default: username, email
	UserKeys []string `yaml:"userKeys"`
	// RateLimit throttles POST /api/events per producer.
	RateLimit RateLimit `yaml:"rateLimit"`
}

type RateLimit struct {
	Enabled bool `yaml:"enabled"`
	// Rate is batches per second per producer. Default: 50
	Rate float64 `yaml:"rate"`
	// Burst is the bucket size. Default: 100
	Burst int `yaml:"burst"`
}

// Application identifies the audited application in event metadata.
type Application struct {
	Name string `yaml:"name"`
	// Meta holds static fields added to every event next to app_name.
	Meta map[string]any `yaml:"meta"`
	// RequestMetadata adds ip, url and user from the request context.
	RequestMetadata *bool `yaml:"requestMetadata"`
}

// Capture configures the capture engine.
type Capture struct {
	// Blacklist is the default list of untracked fields. Default: created, modified
	Blacklist []string         `yaml:"blacklist"`
	Sources   []capture.Source `yaml:"sources"`
}

// Persister selects and configures the event persister.
type Persister struct {
	// Type is one of elasticsearch, kafka, table, log. Default: log
	Type           string               `yaml:"type"`
	Elasticsearch  elasticsearch.Config `yaml:"elasticsearch"`
	Kafka          Kafka                `yaml:"kafka"`
	Table          table.Config         `yaml:"table"`
	CircuitBreaker CircuitBreaker       `yaml:"circuitBreaker"`
}

// Kafka is the file form of kafka.Config. Certificates are read from files.
type Kafka struct {
	Brokers      []string `yaml:"brokers"`
	Exchange     string   `yaml:"exchange"`
	Routing      string   `yaml:"routing"`
	DeliveryMode int      `yaml:"deliveryMode"`
	// WriteTimeout is a duration string, e.g. "10s".
	WriteTimeout string            `yaml:"writeTimeout"`
	Compression  string            `yaml:"compression"`
	TLS          KafkaTLS          `yaml:"tls"`
	SASL         *kafka.SASLConfig `yaml:"sasl"`
}

type KafkaTLS struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"caFile"`
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// CircuitBreaker wraps the persister in an audit.BreakerPersister when enabled.
type CircuitBreaker struct {
	Enabled             bool   `yaml:"enabled"`
	FailureThreshold    int    `yaml:"failureThreshold"`
	SuccessThreshold    int    `yaml:"successThreshold"`
	OpenTimeout         string `yaml:"openTimeout"`
	HalfOpenMaxRequests int    `yaml:"halfOpenMaxRequests"`
}

// Database is the Postgres connection used by the table persister and for
// foreign key labels.
type Database struct {
	DSN string `yaml:"dsn"`
	// LabelKey is the id column used when resolving foreign key labels. Default: id
	LabelKey string `yaml:"labelKey"`
}

// LabelCache caches resolved foreign key labels in Redis.
type LabelCache struct {
	// URL is a redis:// URL. Empty disables the cache.
	URL string `yaml:"url"`
	// TTL is a duration string. Default: 10m
	TTL string `yaml:"ttl"`
}

// Load loads the auditlog configuration from a file path.
func Load(configPath ...string) (Config, error) {
	path := DefaultPath
	if env := os.Getenv(PathEnv); env != "" {
		path = env
	}
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open auditlog config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, &config); err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
	}
	config.Defaults()
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid auditlog config %s: %w", path, err)
	}
	return config, nil
}

// Defaults fills unset values.
func (c *Config) Defaults() {
	for k, v := range c.Application.Meta {
		c.Application.Meta[k] = normalize(v)
	}
	if c.Capture.Blacklist == nil {
		c.Capture.Blacklist = slices.Clone(capture.DefaultBlacklist)
	}
	if c.Application.RequestMetadata == nil {
		enabled := true
		c.Application.RequestMetadata = &enabled
	}
	if c.Persister.Type == "" {
		c.Persister.Type = PersisterLog
	}
	if c.Database.LabelKey == "" {
		c.Database.LabelKey = "id"
	}
	if c.LabelCache.TTL == "" {
		c.LabelCache.TTL = "10m"
	}
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = ":8080"
	}
	if c.Server.RateLimit.Rate <= 0 {
		c.Server.RateLimit.Rate = 50
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = 100
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = "otlp"
	}
	if c.Telemetry.SamplingRate == 0 {
		c.Telemetry.SamplingRate = 1
	}
}

// Validate reports every problem found in the configuration.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(persisterTypes, c.Persister.Type) {
		errs = append(errs, fmt.Errorf("persister.type %q is not one of %v", c.Persister.Type, persisterTypes))
	}
	switch c.Persister.Type {
	case PersisterKafka:
		if len(c.Persister.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("persister.kafka.brokers is required"))
		}
		if _, err := parseDuration(c.Persister.Kafka.WriteTimeout); err != nil {
			errs = append(errs, fmt.Errorf("persister.kafka.writeTimeout: %w", err))
		}
	case PersisterTable:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the table persister"))
		}
	}
	if _, err := parseDuration(c.Persister.CircuitBreaker.OpenTimeout); err != nil {
		errs = append(errs, fmt.Errorf("persister.circuitBreaker.openTimeout: %w", err))
	}
	if _, err := parseDuration(c.LabelCache.TTL); err != nil {
		errs = append(errs, fmt.Errorf("labelCache.ttl: %w", err))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tlsCertFile and server.tlsKeyFile must be set together"))
	}
	if c.Telemetry.Enabled {
		if !slices.Contains(telemetryExporters, c.Telemetry.Exporter) {
			errs = append(errs, fmt.Errorf("telemetry.exporter %q is not one of %v", c.Telemetry.Exporter, telemetryExporters))
		}
		if c.Telemetry.Exporter == "otlp" && c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required for the otlp exporter"))
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("telemetry.samplingRate %v is outside [0, 1]", c.Telemetry.SamplingRate))
		}
	}

	seen := map[string]bool{}
	for i := range c.Capture.Sources {
		src := &c.Capture.Sources[i]
		if err := src.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("capture.sources[%d]: %w", i, err))
			continue
		}
		if seen[src.Name] {
			errs = append(errs, fmt.Errorf("capture.sources[%d]: duplicate source %q", i, src.Name))
		}
		seen[src.Name] = true
		if len(src.ForeignKeys) > 0 && c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("capture.sources[%d]: foreign keys of %q need database.dsn", i, src.Name))
		}
	}

	return errors.Join(errs...)
}

// Source returns the configured source with the given name.
func (c *Config) Source(name string) (capture.Source, bool) {
	for _, src := range c.Capture.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return capture.Source{}, false
}

// Enrichers builds the metadata enrichers in their fixed order: application
// identity first, then request identity.
func (c *Config) Enrichers() *audit.Enrichers {
	enrichers := audit.NewEnrichers()
	if c.Application.Name != "" || len(c.Application.Meta) > 0 {
		enrichers.Register(audit.ApplicationMetadata(c.Application.Name, c.Application.Meta))
	}
	if c.Application.RequestMetadata == nil || *c.Application.RequestMetadata {
		enrichers.Register(audit.RequestMetadata())
	}
	return enrichers
}

// KafkaConfig converts the file form into kafka.Config, reading certificates.
func (c *Config) KafkaConfig() (kafka.Config, error) {
	k := c.Persister.Kafka
	timeout, err := parseDuration(k.WriteTimeout)
	if err != nil {
		return kafka.Config{}, fmt.Errorf("invalid kafka writeTimeout: %w", err)
	}
	out := kafka.Config{
		Brokers:          k.Brokers,
		Exchange:         k.Exchange,
		Routing:          k.Routing,
		DeliveryMode:     kafka.DeliveryMode(k.DeliveryMode),
		WriteTimeout:     timeout,
		CompressionCodec: k.Compression,
		SASL:             k.SASL,
	}
	if k.TLS.Enabled {
		tlsCfg := &kafka.TLSConfig{Enabled: true, InsecureSkipVerify: k.TLS.InsecureSkipVerify}
		for _, f := range []struct {
			path string
			into *[]byte
		}{
			{k.TLS.CAFile, &tlsCfg.CACert},
			{k.TLS.CertFile, &tlsCfg.ClientCert},
			{k.TLS.KeyFile, &tlsCfg.ClientKey},
		} {
			if f.path == "" {
				continue
			}
			data, err := os.ReadFile(f.path)
			if err != nil {
				return kafka.Config{}, fmt.Errorf("failed to read kafka TLS file: %w", err)
			}
			*f.into = data
		}
		out.TLS = tlsCfg
	}
	return out, nil
}

// CircuitBreakerConfig converts the breaker settings, starting from the
// audit defaults.
func (c *Config) CircuitBreakerConfig() (audit.CircuitBreakerConfig, error) {
	cb := c.Persister.CircuitBreaker
	out := audit.DefaultCircuitBreakerConfig()
	if cb.FailureThreshold > 0 {
		out.FailureThreshold = cb.FailureThreshold
	}
	if cb.SuccessThreshold > 0 {
		out.SuccessThreshold = cb.SuccessThreshold
	}
	if cb.HalfOpenMaxRequests > 0 {
		out.HalfOpenMaxRequests = cb.HalfOpenMaxRequests
	}
	timeout, err := parseDuration(cb.OpenTimeout)
	if err != nil {
		return out, fmt.Errorf("invalid circuit breaker openTimeout: %w", err)
	}
	if timeout > 0 {
		out.OpenTimeout = timeout
	}
	return out, nil
}

// TelemetryOptions maps the telemetry section onto tracer provider options.
func (c *Config) TelemetryOptions(serviceVersion string, logger *zap.Logger) telemetry.Options {
	return telemetry.Options{
		Enabled:        c.Telemetry.Enabled,
		ServiceVersion: serviceVersion,
		Exporter:       c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SamplingRate:   c.Telemetry.SamplingRate,
		Logger:         logger,
	}
}

// LabelCacheTTL returns the parsed cache TTL.
func (c *Config) LabelCacheTTL() time.Duration {
	ttl, _ := parseDuration(c.LabelCache.TTL)
	return ttl
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// normalize converts the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]any so they encode as JSON.
func normalize(v any) any {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []interface{}:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return v
	}
}
