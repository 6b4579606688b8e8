// Package httpx holds the JSON error envelope shared by every handler and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// Error is rendered as {"error", "message", "status", "reason"?, "request_id"?, "trace_id"?}.
// Reason carries the machine readable rule code (for example "usage_limit_reached").
type Error struct {
	Code    string
	Message string
	Status  int
	Reason  string
	Details map[string]any
}

func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Code: trim(code, 80), Message: trim(message, 512), Status: status}
}

// WithReason attaches a rule violation code.
func (e Error) WithReason(reason string) Error {
	e.Reason = trim(reason, 80)
	return e
}

// WithDetails merges extra top-level fields into the payload.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	e.Details = merged
	return e
}

// WriteError renders err, stamping the chi request id and the trace id from ctx.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := make(map[string]any, len(err.Details)+6)
	for k, v := range err.Details {
		payload[k] = v
	}
	payload["error"] = err.Code
	payload["message"] = err.Message
	payload["status"] = status
	if err.Reason != "" {
		payload["reason"] = err.Reason
	}
	if id := trim(middleware.GetReqID(ctx), 80); id != "" {
		payload["request_id"] = id
	}
	if id := trim(requestctx.TraceID(ctx), 64); id != "" {
		payload["trace_id"] = id
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func trim(value string, limit int) string {
	value = strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(value))
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
