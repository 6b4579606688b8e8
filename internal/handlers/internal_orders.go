package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

// InternalOrderHandlers serves schedulers and payment workers. The /internal group is mounted
// behind OIDC service authentication, so the caller is identified by its service account.
type InternalOrderHandlers struct {
	orders services.OrderService
}

func NewInternalOrderHandlers(orders services.OrderService) *InternalOrderHandlers {
	return &InternalOrderHandlers{orders: orders}
}

func (h *InternalOrderHandlers) Routes(r chi.Router) {
	r.Post("/orders/{orderID}/cancel", h.cancel)
	r.Put("/orders/{orderID}/payment-status", h.paymentStatus)
}

type systemCancelRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (h *InternalOrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req systemCancelRequest
	if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	result, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   domain.CancelActorSystem,
		ActorID: serviceActor(r),
		Reason:  domain.CancelReason(strings.TrimSpace(req.Reason)),
		Note:    req.Note,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cancelOrderResponse{Order: buildOrderPayload(result.Order), Refundable: result.Refundable})
}

func (h *InternalOrderHandlers) paymentStatus(w http.ResponseWriter, r *http.Request) {
	servePaymentStatus(w, r, h.orders, serviceActor(r))
}

func serviceActor(r *http.Request) string {
	identity, ok := auth.ServiceIdentityFromContext(r.Context())
	if !ok {
		return "system"
	}
	if identity.Email != "" {
		return identity.Email
	}
	return identity.Subject
}
