package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveInference(t *testing.T) {
	m := New()

	m.ObserveInference("summarizer", "fallback")
	m.ObserveInference("summarizer", "fallback")
	m.ObserveInference("classifier", "model")

	if got := testutil.ToFloat64(m.inferences.WithLabelValues("summarizer", "fallback")); got != 2 {
		t.Fatalf("unexpected summarizer fallback count: %v", got)
	}

	if got := testutil.ToFloat64(m.inferences.WithLabelValues("classifier", "model")); got != 1 {
		t.Fatalf("unexpected classifier model count: %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.ObserveInference("summarizer", "rule")
	m.SetBackendReady("summarizer", true)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SetBackendReady("classifier", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), `triagem_backend_ready{engine="classifier"} 1`) {
		t.Fatalf("expected backend gauge in output, got:\n%s", rec.Body.String())
	}
}
