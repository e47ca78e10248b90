package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := NewHTTPMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/carts/{cartID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/carts/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/carts/{cartID}", "418"))
	if got != 2 {
		t.Fatalf("expected 2 requests on route pattern, got %v", got)
	}
}

func TestMiddlewareLabelsUnmatchedRoutes(t *testing.T) {
	m := NewHTTPMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/known", func(w http.ResponseWriter, _ *http.Request) {})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown/123", nil))

	got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "404"))
	if got != 1 {
		t.Fatalf("expected unmatched counter 1, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := NewHTTPMetrics()
	m.requests.WithLabelValues(http.MethodGet, "/x", "200").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "storefront_http_requests_total") {
		t.Fatalf("expected request counter in exposition output")
	}
}
