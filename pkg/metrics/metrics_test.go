package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCaptureMetricsExistAndIncrement(t *testing.T) {
	// Use a test label to avoid colliding with other tests
	lbl := "test-source"

	EventsCaptured.WithLabelValues(lbl, "create").Inc()
	if v := testutil.ToFloat64(EventsCaptured.WithLabelValues(lbl, "create")); v < 1 {
		t.Fatalf("expected EventsCaptured >= 1, got %v", v)
	}

	EventsSuppressed.WithLabelValues(lbl).Add(2)
	if v := testutil.ToFloat64(EventsSuppressed.WithLabelValues(lbl)); v < 2 {
		t.Fatalf("expected EventsSuppressed >= 2, got %v", v)
	}

	CaptureErrors.WithLabelValues(lbl, "malformed").Inc()
	if v := testutil.ToFloat64(CaptureErrors.WithLabelValues(lbl, "malformed")); v < 1 {
		t.Fatalf("expected CaptureErrors >= 1, got %v", v)
	}
}

func TestPersisterErrorsLabelCardinality(t *testing.T) {
	PersisterErrors.Reset()
	defer PersisterErrors.Reset()
	labels := []string{"kafka", "timeout"}
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("PersisterErrors panicked with labels %v: %v", labels, r)
		}
	}()

	PersisterErrors.WithLabelValues(labels...).Inc()
	if v := testutil.ToFloat64(PersisterErrors.WithLabelValues(labels...)); v != 1 {
		t.Fatalf("expected metric value 1 after increment, got %v", v)
	}
}

func TestMetricsHandlerExposesAuditlogMetrics(t *testing.T) {
	FlushFailures.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "auditlog_flush_failures_total") {
		t.Fatalf("expected auditlog_flush_failures_total in exposition")
	}
}
