package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

const (
	DefaultHeader = "Idempotency-Key"
	ReplayHeader  = "X-Idempotent-Replay"
	maxKeyLength  = 255
)

type middlewareConfig struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
}

type MiddlewareOption func(*middlewareConfig)

func WithHeader(name string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if name = strings.TrimSpace(name); name != "" {
			cfg.header = name
		}
	}
}

func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

func WithClock(clock func() time.Time) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Middleware requires the idempotency header on every request it wraps. Keys are scoped to the
// caller, and the fingerprint covers method, path, query and body, so the same key with a
// different payload is rejected with 409. 5xx responses are not stored: the key is released so
// the client can retry.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{header: DefaultHeader, ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" || len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "a valid "+cfg.header+" header is required", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := requesterID(ctx)
			scoped := requester + "|" + key
			fingerprint := sha256Hex([]byte(strings.Join([]string{r.Method, r.URL.Path, r.URL.RawQuery, sha256Hex(body)}, "|")))

			reservation, err := store.Reserve(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrFingerprintMismatch):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict", "idempotency key already used for a different request", http.StatusConflict))
				return
			case err != nil:
				requestctx.Logger(ctx).Error("idempotency reserve failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("unavailable", "unable to process idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "another request is processing this idempotency key", http.StatusConflict))
				return
			}

			rec := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.status() >= http.StatusInternalServerError {
				release(ctx, store, scoped, fingerprint)
			} else if err := store.SaveResponse(ctx, scoped, fingerprint, Response{Status: rec.status(), Headers: rec.header, Body: rec.body.Bytes()}, cfg.clock(), cfg.ttl); err != nil {
				requestctx.Logger(ctx).Error("idempotency save failed", zap.Error(err))
				release(ctx, store, scoped, fingerprint)
			}
			rec.flush(w)
		})
	}
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return "user:" + identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return "svc:" + svc.Subject
	}
	return "anonymous"
}

func release(ctx context.Context, store Store, key, fingerprint string) {
	if err := store.Release(context.WithoutCancel(ctx), key, fingerprint); err != nil {
		requestctx.Logger(ctx).Warn("idempotency release failed", zap.Error(err))
	}
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeaders {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// bufferedWriter holds the handler output until it has been stored.
type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.code == 0 {
		b.code = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for name, values := range b.header {
		w.Header()[name] = values
	}
	w.WriteHeader(b.status())
	_, _ = w.Write(b.body.Bytes())
}
