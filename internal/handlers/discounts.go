package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// DiscountHandlers serves the public active discount snapshot and admin discount maintenance.
type DiscountHandlers struct {
	discounts services.DiscountService
}

func NewDiscountHandlers(discounts services.DiscountService) *DiscountHandlers {
	return &DiscountHandlers{discounts: discounts}
}

// Routes registers the public /discounts endpoints.
func (h *DiscountHandlers) Routes(r chi.Router) {
	r.Get("/active", h.listActive)
}

// AdminRoutes registers /admin/discounts. Callers mount it behind admin authentication.
func (h *DiscountHandlers) AdminRoutes(r chi.Router) {
	r.Get("/", h.listAll)
	r.Post("/", h.create)
	r.Put("/{discountID}", h.update)
	r.Delete("/{discountID}", h.delete)
}

type discountListResponse struct {
	Items []discountPayload `json:"items"`
}

type discountRequest struct {
	Name          string  `json:"name"`
	ScopeType     string  `json:"scope_type"`
	ScopeTarget   string  `json:"scope_target"`
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
	StartsAt      *string `json:"starts_at"`
	EndsAt        *string `json:"ends_at"`
	Active        *bool   `json:"active"`
	Description   string  `json:"description"`
}

func (h *DiscountHandlers) listActive(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.discounts.ListActive(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDiscountList(discounts))
}

func (h *DiscountHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	discounts, err := h.discounts.ListDiscounts(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDiscountList(discounts))
}

func (h *DiscountHandlers) create(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decodeDiscountCommand(w, r)
	if !ok {
		return
	}
	discount, err := h.discounts.CreateDiscount(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildDiscountPayload(discount))
}

func (h *DiscountHandlers) update(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decodeDiscountCommand(w, r)
	if !ok {
		return
	}
	cmd.ID = strings.TrimSpace(chi.URLParam(r, "discountID"))
	discount, err := h.discounts.UpdateDiscount(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildDiscountPayload(discount))
}

func (h *DiscountHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.discounts.DeleteDiscount(r.Context(), chi.URLParam(r, "discountID")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeDiscountCommand(w http.ResponseWriter, r *http.Request) (services.UpsertDiscountCommand, bool) {
	ctx := r.Context()
	var req discountRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.UpsertDiscountCommand{}, false
	}
	scope, err := domain.NewDiscountScope(req.ScopeType, req.ScopeTarget)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.UpsertDiscountCommand{}, false
	}
	adjustment, err := domain.NewAdjustment(req.DiscountType, req.DiscountValue)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.UpsertDiscountCommand{}, false
	}
	startsAt, err := parseTimeParam(req.StartsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at "+err.Error(), http.StatusBadRequest))
		return services.UpsertDiscountCommand{}, false
	}
	endsAt, err := parseTimeParam(req.EndsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ends_at "+err.Error(), http.StatusBadRequest))
		return services.UpsertDiscountCommand{}, false
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return services.UpsertDiscountCommand{
		Name:        req.Name,
		Scope:       scope,
		Adjustment:  adjustment,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Active:      active,
		Description: req.Description,
	}, true
}

func buildDiscountList(discounts []domain.Discount) discountListResponse {
	items := make([]discountPayload, 0, len(discounts))
	for _, discount := range discounts {
		items = append(items, buildDiscountPayload(discount))
	}
	return discountListResponse{Items: items}
}
