package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestRouterUnknownRoute(t *testing.T) {
	rr := serve(t, newFixture().router(nil), http.MethodGet, "/api/v1/nope", nil)
	body := expectStatus(t, rr, http.StatusNotFound)
	if body["error"] != errorNotFoundCode {
		t.Fatalf("expected %s, got %v", errorNotFoundCode, body["error"])
	}
}

func TestRouterUnregisteredGroupIsNotImplemented(t *testing.T) {
	router := NewRouter()
	rr := serve(t, router, http.MethodPost, "/api/v1/orders", "{}")
	body := expectStatus(t, rr, http.StatusNotImplemented)
	if body["error"] != "not_implemented" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestHealthz(t *testing.T) {
	rr := serve(t, newFixture().router(nil), http.MethodGet, "/healthz", nil)
	body := expectStatus(t, rr, http.StatusOK)
	if body["status"] != "ok" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	f := newFixture()
	f.system = stubSystemService{report: domain.SystemHealthReport{
		Status:  domain.HealthStatusError,
		Version: "1.2.3",
		Checks: map[string]domain.SystemHealthCheck{
			"postgres":  {Status: domain.HealthStatusError, Error: "connection refused"},
			"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
		},
		GeneratedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	rr := serve(t, f.router(nil), http.MethodGet, "/readyz", nil)
	body := expectStatus(t, rr, http.StatusServiceUnavailable)

	checks, _ := body["checks"].([]any)
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %v", body["checks"])
	}
	first := checks[0].(map[string]any)
	if first["name"] != "firestore" || first["latency_ms"] != float64(12) {
		t.Fatalf("checks must be sorted by name, got %v", first)
	}
}

func TestReadyzCollectFailure(t *testing.T) {
	f := newFixture()
	f.system = stubSystemService{err: context.DeadlineExceeded}
	rr := serve(t, f.router(nil), http.MethodGet, "/readyz", nil)
	expectStatus(t, rr, http.StatusServiceUnavailable)
}
