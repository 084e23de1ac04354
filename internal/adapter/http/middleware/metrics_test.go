package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/invitequeue/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/v1/purchases/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"01AAA", "01BBB"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/purchases/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	counter := m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/purchases/{id}", "418")
	if got := testutil.ToFloat64(counter); got != 2 {
		t.Fatalf("expected request counter to be 2, got %v", got)
	}
}

func TestMetricsMiddlewareUnmatchedPath(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	counter := m.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("expected unmatched counter to be 1, got %v", got)
	}
}
