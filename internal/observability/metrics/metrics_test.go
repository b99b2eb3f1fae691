package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/infrastructure/resilience"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("metrics endpoint returned %d", res.Code)
	}
	return res.Body.String()
}

func TestMiddlewareCountsRequestsByNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/v1/documents/abc", "/v1/documents/def"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, path, nil))
	}

	body := scrape(t, m.Handler())
	want := `ula_http_requests_total{method="DELETE",path="/v1/documents/{document_id}",service="api",status="404"} 2`
	if !strings.Contains(body, want) {
		t.Fatalf("expected %s in:\n%s", want, body)
	}
}

func TestNormalizePathKeepsStaticDocumentRoutes(t *testing.T) {
	if got := normalizePath("/v1/documents/classify"); got != "/v1/documents/classify" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestRecordAnswerObservesEvidenceOnlyForGroundedAnswers(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordAnswer("api", "chat", "grounded", 3, time.Second)
	m.RecordAnswer("api", "chat", "fallback", 0, time.Second)
	m.RecordVariantTimeouts("api", []string{"recency", "recency"})
	m.RecordUploadOutcome("api", "rejected")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`ula_answer_total{endpoint="chat",mode="fallback",service="api"} 1`,
		`ula_retrieval_evidence_chunks_count{endpoint="chat",service="api"} 1`,
		`ula_retrieval_variant_timeouts_total{service="api",variant="recency"} 2`,
		`ula_upload_outcomes_total{outcome="rejected",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in:\n%s", want, body)
		}
	}
}

func TestWorkerMetricsTrackSources(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartSource()
	m.FinishSource("worker", time.Second, 12, nil)
	m.StartSource()
	m.FinishSource("worker", time.Second, 0, errors.New("fetch failed"))
	m.RecordPurged("worker", 4)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`ula_worker_legislation_sources_total{service="worker",status="error"} 1`,
		`ula_worker_chunks_written_total{service="worker"} 12`,
		`ula_worker_legislation_sources_in_flight{service="worker"} 0`,
		`ula_worker_purged_uploads_total{service="worker"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in:\n%s", want, body)
		}
	}
}

func TestResilienceMetricsExportBreakerState(t *testing.T) {
	m := NewWorkerMetrics("worker")
	exec := resilience.NewExecutor(resilience.DefaultConfig(),
		resilience.WithObserver(m.Resilience()),
		resilience.WithPolicy(resilience.DependencyLegislation, resilience.Config{
			RetryMaxAttempts:    2,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     time.Millisecond,
			BreakerEnabled:      true,
			BreakerMinRequests:  1,
			BreakerFailureRatio: 1,
			BreakerOpenTimeout:  time.Minute,
		}),
	)

	_ = exec.Execute(context.Background(), "legislation.fetch", func(context.Context) error {
		return errors.New("connection reset")
	}, func(error) resilience.ErrorClassification {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	})

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`ula_resilience_breaker_state{dependency="legislation",operation="legislation.fetch",service="worker"} 2`,
		`ula_resilience_breaker_transitions_total{dependency="legislation",service="worker",to="open"} 1`,
		`ula_resilience_retries_total{dependency="legislation",operation="legislation.fetch",service="worker"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in:\n%s", want, body)
		}
	}
}

func TestHTTPMetricsExposeResilience(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.Resilience().BreakerStateChanged("ollama", "ollama.chat", "closed", "half-open")

	want := `ula_resilience_breaker_state{dependency="ollama",operation="ollama.chat",service="api"} 1`
	if body := scrape(t, m.Handler()); !strings.Contains(body, want) {
		t.Fatalf("expected %s in:\n%s", want, body)
	}
}
