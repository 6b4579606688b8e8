package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "trace-1"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("coupon_rejected", "coupon\nrejected", http.StatusUnprocessableEntity).
		WithReason("usage_limit_reached").
		WithDetails(map[string]any{"code": "SUMMER", "error": "ignored"}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"error":      "coupon_rejected",
		"message":    "coupon rejected",
		"status":     float64(422),
		"reason":     "usage_limit_reached",
		"request_id": "req-1",
		"trace_id":   "trace-1",
		"code":       "SUMMER",
	}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("field %s: expected %v, got %v", k, v, body[k])
		}
	}
}

func TestWriteErrorOmitsEmptyFields(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, Error{Code: "boom"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected default 500, got %d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	for _, key := range []string{"reason", "request_id", "trace_id"} {
		if _, ok := body[key]; ok {
			t.Fatalf("expected %s to be omitted", key)
		}
	}
}
