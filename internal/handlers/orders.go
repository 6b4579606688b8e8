package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// OrderHandlers exposes order placement and lifecycle endpoints to customers and staff.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order placement and refund initiation.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) { h.idempotency = mw }
}

func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(requireRoles())

	idem := orPassthrough(h.idempotency)
	staff := requireRoles(auth.RoleStaff, auth.RoleAdmin)

	r.With(idem).Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/cancel", h.cancelOrder)
	r.With(staff).Put("/{orderID}/status", h.updateStatus)
	r.With(staff).Put("/{orderID}/payment-status", h.updatePaymentStatus)
	r.With(staff, idem).Post("/{orderID}/refund", h.initiateRefund)
	r.With(staff).Put("/{orderID}/refund-status", h.updateRefundStatus)
}

type createOrderRequest struct {
	Items      []cartItemRequest `json:"items"`
	CouponCode string            `json:"coupon_code"`
	Payment    *paymentPayload   `json:"payment"`
}

type updateStatusRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expected_status"`
}

type cancelOrderRequest struct {
	Reason         string `json:"reason"`
	CustomReason   string `json:"custom_reason"`
	ExpectedStatus string `json:"expected_status"`
}

type cancelOrderResponse struct {
	Order      orderPayload `json:"order"`
	Refundable bool         `json:"refundable"`
}

type paymentStatusRequest struct {
	Status   string `json:"status"`
	IntentID string `json:"intent_id"`
	Provider string `json:"provider"`
}

type refundRequest struct {
	Amount *int64 `json:"amount"`
	Reason string `json:"reason"`
}

type refundStatusRequest struct {
	Status      string `json:"status"`
	ConfirmUndo bool   `json:"confirm_undo"`
}

// createOrder always uses the caller's uid as the customer; totals are recomputed server-side.
func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.IdentityFromContext(ctx)
	var req createOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	cmd := services.CreateOrderCommand{
		CustomerID: identity.UID,
		Items:      cartLines(req.Items),
		CouponCode: req.CouponCode,
	}
	if req.Payment != nil {
		cmd.Payment = domain.PaymentReference{
			Provider: strings.TrimSpace(req.Payment.Provider),
			IntentID: strings.TrimSpace(req.Payment.IntentID),
		}
	}
	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

// getOrder hides other customers' orders behind a 404.
func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadVisibleOrder(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// cancelOrder cancels as admin when the caller is staff and as customer otherwise, in which
// case the caller must own the order.
func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	expected, ok := parseExpectedStatus(w, r, req.ExpectedStatus)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	actor := domain.CancelActorAdmin
	if !identity.IsStaff() {
		actor = domain.CancelActorCustomer
		if _, ok := h.loadVisibleOrder(w, r); !ok {
			return
		}
	}
	result, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		Actor:          actor,
		ActorID:        identity.UID,
		Reason:         domain.CancelReason(strings.TrimSpace(req.Reason)),
		Note:           req.CustomReason,
		ExpectedStatus: expected,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cancelOrderResponse{Order: buildOrderPayload(result.Order), Refundable: result.Refundable})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		writeBadRequest(ctx, w, "status must be one of pending, confirmed, processing, shipped, delivered, cancelled")
		return
	}
	expected, ok := parseExpectedStatus(w, r, req.ExpectedStatus)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		Status:         status,
		ActorID:        identity.UID,
		ExpectedStatus: expected,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	servePaymentStatus(w, r, h.orders, identity.UID)
}

func (h *OrderHandlers) initiateRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req refundRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	order, err := h.orders.InitiateRefund(ctx, services.InitiateRefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Amount:  req.Amount,
		Reason:  req.Reason,
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusAccepted, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateRefundStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req refundStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	status, ok := domain.ParseRefundStatus(req.Status)
	if !ok {
		writeBadRequest(ctx, w, "status must be one of none, requested, processing, completed, rejected")
		return
	}
	identity, _ := auth.IdentityFromContext(ctx)
	order, err := h.orders.UpdateRefundStatus(ctx, services.UpdateRefundStatusCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		Status:      status,
		ConfirmUndo: req.ConfirmUndo,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) loadVisibleOrder(w http.ResponseWriter, r *http.Request) (domain.Order, bool) {
	ctx := r.Context()
	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return domain.Order{}, false
	}
	identity, _ := auth.IdentityFromContext(ctx)
	if !identity.IsStaff() && order.CustomerID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return domain.Order{}, false
	}
	return order, true
}

// servePaymentStatus is shared by the staff route and the internal payment worker callback.
func servePaymentStatus(w http.ResponseWriter, r *http.Request, orders services.OrderService, actorID string) {
	ctx := r.Context()
	var req paymentStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	status, ok := domain.ParsePaymentStatus(req.Status)
	if !ok {
		writeBadRequest(ctx, w, "status must be one of pending, success, failed, refunded")
		return
	}
	order, err := orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		Status:   status,
		ActorID:  actorID,
		IntentID: strings.TrimSpace(req.IntentID),
		Provider: strings.TrimSpace(req.Provider),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseExpectedStatus(w http.ResponseWriter, r *http.Request, raw string) (*domain.OrderStatus, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	status, ok := domain.ParseOrderStatus(raw)
	if !ok {
		writeBadRequest(r.Context(), w, "expected_status is not a known order status")
		return nil, false
	}
	return &status, true
}
