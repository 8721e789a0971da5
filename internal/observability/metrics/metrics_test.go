package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

func TestSubmissionMetricsObserveRun(t *testing.T) {
	m := NewSubmissionMetrics("test")
	clock := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	rc := &domain.RunContext{Total: 2}
	m.ObserveEvent(domain.StartedEvent(2, 10*time.Second))
	if got := testutil.ToFloat64(m.runsInFlight); got != 1 {
		t.Fatalf("expected one run in flight, got %v", got)
	}

	rc.Record(true)
	m.ObserveEvent(domain.ItemAttemptedEvent("1/2024", rc, true, ""))
	rc.Record(false)
	m.ObserveEvent(domain.ItemAttemptedEvent("2/2024", rc, false, "boom"))
	if got := testutil.ToFloat64(m.runProgress); got != 1 {
		t.Fatalf("expected progress 1, got %v", got)
	}

	m.ObserveEvent(domain.FinalizingEvent())
	m.ObserveEvent(domain.CompletedEvent(8*time.Second, 2, 1))

	if got := testutil.ToFloat64(m.itemsTotal.WithLabelValues("test", "success")); got != 1 {
		t.Fatalf("unexpected success count: %v", got)
	}
	if got := testutil.ToFloat64(m.itemsTotal.WithLabelValues("test", "failure")); got != 1 {
		t.Fatalf("unexpected failure count: %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("test", "completed")); got != 1 {
		t.Fatalf("unexpected completed count: %v", got)
	}
	if got := testutil.ToFloat64(m.runsInFlight); got != 0 {
		t.Fatalf("expected no runs in flight, got %v", got)
	}
}

func TestSubmissionMetricsCancelledRun(t *testing.T) {
	m := NewSubmissionMetrics("test")
	start := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	m.ObserveEvent(domain.StartedEvent(3, 0))
	m.now = func() time.Time { return start.Add(4 * time.Second) }
	m.ObserveEvent(domain.FailedEvent(domain.ReasonCancelled))

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("test", "cancelled")); got != 1 {
		t.Fatalf("unexpected cancelled count: %v", got)
	}
	if got := testutil.CollectAndCount(m.runDuration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestSubmissionMetricsFailureBeforeStart(t *testing.T) {
	m := NewSubmissionMetrics("test")
	m.ObserveEvent(domain.FailedEvent("navigation: timeout"))

	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("test", "failed")); got != 1 {
		t.Fatalf("unexpected failed count: %v", got)
	}
	if got := testutil.ToFloat64(m.runsInFlight); got != 0 {
		t.Fatalf("in-flight gauge must stay at zero, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, path := range []string{"/v1/stats", "/random/1", "/random/2"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "/v1/stats", "418")); got != 1 {
		t.Fatalf("unexpected stats count: %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "other", "418")); got != 2 {
		t.Fatalf("unknown paths must collapse, got %v", got)
	}
}

func TestCombinedHandlerExposesBothRegistries(t *testing.T) {
	httpMetrics := NewHTTPServerMetrics("api")
	submission := NewSubmissionMetrics("api")
	httpMetrics.RecordUpload("api", 128)
	submission.ObserveEvent(domain.FailedEvent("x"))

	rec := httptest.NewRecorder()
	Handler(httpMetrics.Gatherer(), submission.Gatherer()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"tombamento_http_uploaded_bytes_total", "tombamento_submission_runs_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in output", name)
		}
	}
}
