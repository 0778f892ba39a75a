package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncTransition("REQUEST", "APPROVE")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "stockflow_lifecycle_transitions_total") {
		t.Fatalf("transition counter missing from exposition:\n%s", body)
	}
}

func TestMiddlewareRecordsRouteAndStatus(t *testing.T) {
	m := NewMetrics()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/requests/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `route="/requests/{id}"`) {
		t.Fatalf("route pattern label missing:\n%s", body)
	}
	if !strings.Contains(body, `code="418"`) {
		t.Fatalf("status code label missing:\n%s", body)
	}
}

func TestNilMetricsDegrades(t *testing.T) {
	var m *Metrics

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("middleware must pass through when metrics are nil")
	}
}
