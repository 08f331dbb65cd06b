package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/apiresponses"
	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/metrics"
	"github.com/telekom/auditlog/pkg/system"
	"github.com/telekom/auditlog/pkg/telemetry"
)

// MaxBatchBytes bounds the request body accepted by the events endpoint.
const MaxBatchBytes = 8 << 20

// EventsController accepts batches of audit records on POST /api/events.
type EventsController struct {
	persister audit.Persister
	enrichers *audit.Enrichers
	factory   audit.Factory
	log       *zap.Logger
}

func NewEventsController(persister audit.Persister, enrichers *audit.Enrichers, log *zap.Logger) *EventsController {
	return &EventsController{
		persister: persister,
		enrichers: enrichers,
		log:       log.Named("events"),
	}
}

func (ec *EventsController) BasePath() string {
	return "events"
}

func (ec *EventsController) Handlers() []gin.HandlerFunc {
	return nil
}

func (ec *EventsController) Register(rg *gin.RouterGroup) error {
	rg.POST("", ec.handleIngest)
	return nil
}

// handleIngest rebuilds events from the posted records, enriches them with
// the metadata of this request and persists them as one batch. The batch span
// joins the server span when one exists, otherwise the producer's traceparent.
func (ec *EventsController) handleIngest(c *gin.Context) {
	log := system.GetReqLogger(c, ec.log)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBatchBytes))
	if err != nil {
		ec.count("rejected")
		apiresponses.RespondBadRequestWithDetails(c, "failed to read request body", err.Error())
		return
	}
	var records []audit.Record
	if err := json.Unmarshal(body, &records); err != nil {
		ec.count("rejected")
		apiresponses.RespondBadRequestWithDetails(c, "request body must be a JSON array of audit records", err.Error())
		return
	}
	if len(records) == 0 {
		ec.count("rejected")
		apiresponses.RespondUnprocessableEntity(c, "batch contains no records")
		return
	}

	events := make([]*audit.Event, 0, len(records))
	for i, rec := range records {
		event, err := ec.factory.Create(rec)
		if err != nil {
			ec.count("rejected")
			apiresponses.RespondUnprocessableEntity(c, fmt.Sprintf("record %d: %v", i, err))
			return
		}
		events = append(events, event)
	}

	ctx := c.Request.Context()
	if !trace.SpanContextFromContext(ctx).IsValid() {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(c.Request.Header))
	}
	ctx, span := telemetry.StartBatch(ctx, "auditlog.ingest", events)
	var spanErr error
	defer func() { telemetry.End(span, spanErr) }()

	if err := ec.enrichers.Enrich(ctx, events); err != nil {
		spanErr = err
		ec.count("failed")
		apiresponses.RespondInternalError(c, "enrich audit events", err, log)
		return
	}

	if err := ec.persister.LogEvents(ctx, events); err != nil {
		spanErr = err
		ec.count("failed")
		log.Error("Failed to persist audit batch", zap.Error(err), zap.Int("events", len(events)))
		if errors.Is(err, audit.ErrCircuitOpen) {
			apiresponses.RespondServiceUnavailable(c, "persister")
			return
		}
		apiresponses.RespondBadGateway(c, "failed to persist audit events")
		return
	}

	ec.count("accepted")
	log.Debug("Accepted audit batch", zap.Int("events", len(events)),
		zap.String("transaction", events[0].TransactionID()))
	apiresponses.RespondAccepted(c, gin.H{"accepted": len(events)})
}

func (ec *EventsController) count(result string) {
	metrics.IngestBatches.WithLabelValues("api", result).Inc()
}
