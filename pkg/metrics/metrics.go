package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Capture metrics
	EventsCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_events_captured_total",
		Help: "Total number of audit events queued by the capture engine",
	}, []string{"source", "type"})
	EventsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_events_suppressed_total",
		Help: "Total number of saves that produced no audit event because nothing tracked changed",
	}, []string{"source"})
	CaptureErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_capture_errors_total",
		Help: "Total number of capture failures that aborted a save or delete",
	}, []string{"source", "reason"})
	FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditlog_flush_duration_seconds",
		Help:    "Time spent enriching and persisting one unit of work",
		Buckets: prometheus.DefBuckets,
	})
	FlushBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auditlog_flush_batch_size",
		Help:    "Number of events handed to the persister per unit of work",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
	FlushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auditlog_flush_failures_total",
		Help: "Total number of unit-of-work flushes that returned an error",
	})

	// Persister metrics
	PersisterEventsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_persister_events_written_total",
		Help: "Total number of audit events written by a persister",
	}, []string{"persister"})
	PersisterErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_persister_errors_total",
		Help: "Total number of persister errors by error type",
	}, []string{"persister", "error_type"})
	PersisterLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auditlog_persister_latency_seconds",
		Help:    "Latency of a single persister batch write",
		Buckets: prometheus.DefBuckets,
	}, []string{"persister"})
	PersisterRowsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_persister_rows_skipped_total",
		Help: "Total number of rows skipped by the relational persister",
	}, []string{"table", "reason"})
	KafkaBatchesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_kafka_batches_sent_total",
		Help: "Total number of audit batches published to Kafka",
	}, []string{"topic"})

	// Circuit breaker metrics
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "auditlog_circuit_breaker_state",
		Help: "Current circuit breaker state per persister (0=closed, 1=open, 2=half-open)",
	}, []string{"persister"})
	CircuitBreakerRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_circuit_breaker_rejections_total",
		Help: "Total number of batches rejected because the circuit was open",
	}, []string{"persister"})

	// Label resolver cache
	LabelCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_label_cache_lookups_total",
		Help: "Foreign key label cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	// Ingest API and replay
	IngestBatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auditlog_ingest_batches_total",
		Help: "Batches received by the ingest API or replayed, by origin and result",
	}, []string{"origin", "result"})
)

func init() {
	prometheus.MustRegister(EventsCaptured)
	prometheus.MustRegister(EventsSuppressed)
	prometheus.MustRegister(CaptureErrors)
	prometheus.MustRegister(FlushDuration)
	prometheus.MustRegister(FlushBatchSize)
	prometheus.MustRegister(FlushFailures)
	prometheus.MustRegister(PersisterEventsWritten)
	prometheus.MustRegister(PersisterErrors)
	prometheus.MustRegister(PersisterLatency)
	prometheus.MustRegister(PersisterRowsSkipped)
	prometheus.MustRegister(KafkaBatchesSent)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRejections)
	prometheus.MustRegister(LabelCacheLookups)
	prometheus.MustRegister(IngestBatches)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
