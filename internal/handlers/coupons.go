package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// CouponHandlers serves coupon validation, redemption and admin maintenance.
type CouponHandlers struct {
	authn       *auth.Authenticator
	coupons     services.CouponService
	idempotency func(http.Handler) http.Handler
}

type CouponHandlersOption func(*CouponHandlers)

// WithCouponIdempotency guards confirm-usage with the Idempotency-Key middleware.
func WithCouponIdempotency(mw func(http.Handler) http.Handler) CouponHandlersOption {
	return func(h *CouponHandlers) { h.idempotency = mw }
}

func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService, opts ...CouponHandlersOption) *CouponHandlers {
	h := &CouponHandlers{authn: authn, coupons: coupons}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers /coupons. Validation is public; redemption needs a signed-in caller.
func (h *CouponHandlers) Routes(r chi.Router) {
	r.Post("/validate", h.validate)
	protected := r.With(orPassthrough(h.requireAuth()), requireRoles(), orPassthrough(h.idempotency))
	protected.Post("/confirm-usage", h.confirmUsage)
}

// AdminRoutes registers /admin/coupons.
func (h *CouponHandlers) AdminRoutes(r chi.Router) {
	r.Get("/", h.listAll)
	r.Post("/", h.create)
	r.Put("/{code}", h.update)
	r.Delete("/{code}", h.delete)
}

func (h *CouponHandlers) requireAuth() func(http.Handler) http.Handler {
	if h.authn == nil {
		return nil
	}
	return h.authn.RequireFirebaseAuth()
}

type validateCouponRequest struct {
	Code       string            `json:"code"`
	CartTotal  int64             `json:"cart_total"`
	Categories []string          `json:"cart_categories"`
	CartItems  []cartItemRequest `json:"cart_items"`
}

type validateCouponResponse struct {
	Code           string         `json:"code"`
	Valid          bool           `json:"valid"`
	Reason         string         `json:"reason,omitempty"`
	Message        string         `json:"message,omitempty"`
	CartTotal      int64          `json:"cart_total"`
	DiscountAmount int64          `json:"discount_amount"`
	FinalAmount    int64          `json:"final_amount"`
	Coupon         *couponPayload `json:"coupon,omitempty"`
}

type confirmUsageRequest struct {
	Code    string `json:"code"`
	OrderID string `json:"order_id"`
}

type confirmUsageResponse struct {
	Coupon          couponPayload `json:"coupon"`
	AlreadyRedeemed bool          `json:"already_redeemed"`
}

type couponListResponse struct {
	Items []couponPayload `json:"items"`
}

type couponRequest struct {
	Code                 string   `json:"code"`
	DiscountType         string   `json:"discount_type"`
	DiscountValue        float64  `json:"discount_value"`
	MinPurchase          int64    `json:"min_purchase"`
	StartsAt             *string  `json:"starts_at"`
	EndsAt               *string  `json:"ends_at"`
	Active               *bool    `json:"active"`
	UsageLimit           *int64   `json:"usage_limit"`
	ApplicableCategories []string `json:"applicable_categories"`
	Description          string   `json:"description"`
}

// validate is advisory. A rejected coupon is a 200 with valid=false; only malformed input or
// a failing store produce an error status.
func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req validateCouponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	result, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		Code:       req.Code,
		CartTotal:  req.CartTotal,
		Categories: req.Categories,
		Items:      cartLines(req.CartItems),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := validateCouponResponse{
		Code:           result.Code,
		Valid:          result.Valid,
		Reason:         string(result.Reason),
		Message:        result.Message,
		CartTotal:      result.CartTotal,
		DiscountAmount: result.DiscountAmount,
		FinalAmount:    result.FinalAmount,
	}
	if result.Coupon != nil && result.Valid {
		payload := buildCouponPayload(*result.Coupon)
		resp.Coupon = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CouponHandlers) confirmUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req confirmUsageRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	cmd := services.ConfirmCouponUsageCommand{
		Code:    req.Code,
		OrderID: strings.TrimSpace(req.OrderID),
		ActorID: identity.UID,
	}
	if !identity.IsStaff() {
		if cmd.OrderID == "" {
			writeBadRequest(ctx, w, "order_id is required")
			return
		}
		cmd.CustomerID = identity.UID
	}
	redemption, err := h.coupons.ConfirmUsage(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, confirmUsageResponse{
		Coupon:          buildCouponPayload(redemption.Coupon),
		AlreadyRedeemed: redemption.AlreadyRedeemed,
	})
}

func (h *CouponHandlers) listAll(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListCoupons(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]couponPayload, 0, len(coupons))
	for _, coupon := range coupons {
		items = append(items, buildCouponPayload(coupon))
	}
	writeJSONResponse(w, http.StatusOK, couponListResponse{Items: items})
}

func (h *CouponHandlers) create(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	coupon, err := h.coupons.CreateCoupon(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCouponPayload(coupon))
}

// update takes the code from the path; a differing code in the body is rejected.
func (h *CouponHandlers) update(w http.ResponseWriter, r *http.Request) {
	cmd, ok := decodeCouponCommand(w, r)
	if !ok {
		return
	}
	pathCode := domain.NormalizeCouponCode(chi.URLParam(r, "code"))
	if cmd.Code != "" && domain.NormalizeCouponCode(cmd.Code) != pathCode {
		writeBadRequest(r.Context(), w, "code in body does not match path")
		return
	}
	cmd.Code = pathCode
	coupon, err := h.coupons.UpdateCoupon(r.Context(), cmd)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCouponPayload(coupon))
}

func (h *CouponHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.DeleteCoupon(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeCouponCommand(w http.ResponseWriter, r *http.Request) (services.UpsertCouponCommand, bool) {
	ctx := r.Context()
	var req couponRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.UpsertCouponCommand{}, false
	}
	adjustment, err := domain.NewAdjustment(req.DiscountType, req.DiscountValue)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return services.UpsertCouponCommand{}, false
	}
	startsAt, err := parseTimeParam(req.StartsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "starts_at "+err.Error(), http.StatusBadRequest))
		return services.UpsertCouponCommand{}, false
	}
	endsAt, err := parseTimeParam(req.EndsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ends_at "+err.Error(), http.StatusBadRequest))
		return services.UpsertCouponCommand{}, false
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return services.UpsertCouponCommand{
		Code:                 req.Code,
		Adjustment:           adjustment,
		MinPurchase:          req.MinPurchase,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		Active:               active,
		UsageLimit:           req.UsageLimit,
		ApplicableCategories: req.ApplicableCategories,
		Description:          req.Description,
	}, true
}
