package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentRecordsRequestsTotal(t *testing.T) {
	m := New()
	handler := Instrument(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "/peers", "200"))
	if got != 1 {
		t.Fatalf("RequestsTotal = %v, want 1", got)
	}
}

func TestInstrumentNilMetricsIsNoop(t *testing.T) {
	called := false
	handler := Instrument(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Fatalf("expected wrapped handler to run")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
