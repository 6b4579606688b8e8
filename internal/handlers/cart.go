package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/services"
)

// CartHandlers prices carts without persisting anything.
type CartHandlers struct {
	orders services.OrderService
}

func NewCartHandlers(orders services.OrderService) *CartHandlers {
	return &CartHandlers{orders: orders}
}

func (h *CartHandlers) Routes(r chi.Router) {
	r.Post("/price", h.price)
}

type priceCartRequest struct {
	Items      []cartItemRequest `json:"items"`
	CouponCode string            `json:"coupon_code"`
}

// price returns the breakdown even when the coupon is rejected; the rejection is reported in
// coupon_rejection and the totals exclude it.
func (h *CartHandlers) price(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req priceCartRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	breakdown, err := h.orders.Quote(ctx, services.QuoteCommand{
		Items:      cartLines(req.Items),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPriceBreakdown(breakdown))
}
