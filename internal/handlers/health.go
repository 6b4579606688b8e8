package handlers

import (
	"net/http"
	"sort"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	now    func() time.Time
}

func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system, now: time.Now}
}

type readinessCheckPayload struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type readinessPayload struct {
	Status      string                  `json:"status"`
	Version     string                  `json:"version,omitempty"`
	CommitSHA   string                  `json:"commit_sha,omitempty"`
	Environment string                  `json:"environment,omitempty"`
	Uptime      string                  `json:"uptime,omitempty"`
	Checks      []readinessCheckPayload `json:"checks"`
	GeneratedAt string                  `json:"generated_at"`
}

// Healthz reports the process is serving; it never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"timestamp": formatTime(h.now()),
	})
}

// Readyz returns 503 when any dependency probe reports an error.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readinessPayload{Status: domain.HealthStatusOK, Checks: []readinessCheckPayload{}, GeneratedAt: formatTime(h.now())})
		return
	}
	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("readiness_unavailable", "unable to collect dependency health", http.StatusServiceUnavailable))
		return
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make([]readinessCheckPayload, 0, len(names))
	for _, name := range names {
		check := report.Checks[name]
		checks = append(checks, readinessCheckPayload{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		})
	}
	payload := readinessPayload{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Checks:      checks,
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.Round(time.Second).String()
	}
	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}
