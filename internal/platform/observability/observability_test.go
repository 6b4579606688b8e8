package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

func TestParseCloudTrace(t *testing.T) {
	sc, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("unexpected span id %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	for _, header := range []string{"", "abc", "105445aa7843bc8bf206b12000100000/", "zz/1", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewarePropagatesHeader(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("demo")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/discounts/active", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/0000000000000002;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.TraceID != "105445aa7843bc8bf206b12000100000" || got.ProjectID != "demo" {
		t.Fatalf("unexpected trace info %+v", got)
	}
	if !strings.HasPrefix(rec.Header().Get(cloudTraceHeader), got.TraceID+"/") {
		t.Fatalf("expected trace header echoed, got %q", rec.Header().Get(cloudTraceHeader))
	}
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(logger), RequestLoggerMiddleware(), RecoveryMiddleware(logger))
	router.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	router.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"internal_server_error"`) {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if n := logs.FilterMessage("panic recovered").Len(); n != 1 {
		t.Fatalf("expected one panic log, got %d", n)
	}
	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 2 {
		t.Fatalf("expected two request logs, got %d", len(completed))
	}
	first := completed[0].ContextMap()
	if first["route"] != "/orders/{id}" || first["status"] != int64(http.StatusInternalServerError) {
		t.Fatalf("unexpected fields %+v", first)
	}
	if completed[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected 4xx to log at warn, got %s", completed[1].Level)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	reqCore, reqLogs := observer.New(zapcore.InfoLevel)
	log := EventLogger(zap.New(baseCore), "orders")

	log(context.Background(), "order.event.publish.failed", map[string]any{"order_id": "ord_1", "error": errors.New("down")})
	log(requestctx.WithLogger(context.Background(), zap.New(reqCore)), "pricing_discount_clamped", nil)

	if baseLogs.Len() != 1 || reqLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got base=%d request=%d", baseLogs.Len(), reqLogs.Len())
	}
	entry := baseLogs.All()[0]
	if entry.LoggerName != "orders" || entry.ContextMap()["error"] != "down" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestClean(t *testing.T) {
	if got := clean("GET\n\x00POST", 10); got != "GETPOST" {
		t.Fatalf("unexpected %q", got)
	}
	if got := clean("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}
