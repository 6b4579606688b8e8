package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const maxRequestBody = 64 * 1024

var errEmptyBody = errors.New("request body is required")

// decodeJSONBody reads at most maxRequestBody bytes and rejects unknown fields.
func decodeJSONBody(r *http.Request, dst any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) > maxRequestBody {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// writeServiceError renders service errors per class: validation 400, not found 404, order
// rule violations and conflicts 409, coupon rule violations 422, dependency failures 503.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var violation *services.RuleViolation
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	case errors.As(err, &violation) && errors.Is(err, services.ErrCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", violation.Message, http.StatusUnprocessableEntity).WithReason(violation.Code))
	case errors.As(err, &violation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", violation.Message, http.StatusConflict).WithReason(violation.Code))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCouponInvalidInput),
		errors.Is(err, services.ErrDiscountInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCouponNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_not_found", "coupon not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrCouponConflict),
		errors.Is(err, services.ErrDiscountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "the resource was modified concurrently; please retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable),
		errors.Is(err, services.ErrCouponUnavailable),
		errors.Is(err, services.ErrDiscountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "a dependency is unavailable; try again later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

// requireRoles checks the identity placed on the context by the Firebase middleware.
func requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok || strings.TrimSpace(identity.UID) == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			if len(roles) > 0 && !identity.HasAnyRole(roles...) {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "insufficient role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func orPassthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return passthrough
	}
	return mw
}

func parseTimeParam(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("must be RFC3339 timestamp")
	}
	ts = ts.UTC()
	return &ts, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}
