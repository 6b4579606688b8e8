package handlers

import (
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

// cartItemRequest is what the caller chooses. Name, category, image and unit_price are
// still decoded so older clients are not rejected, but pricing reads them from the catalog.
type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Image     string `json:"image"`
	UnitPrice int64  `json:"unit_price"`
}

func cartLines(items []cartItemRequest) []services.CartLine {
	lines := make([]services.CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, services.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	return lines
}

type adjustmentPayload struct {
	DiscountType  string  `json:"discount_type"`
	DiscountValue float64 `json:"discount_value"`
}

func buildAdjustment(adj domain.Adjustment) adjustmentPayload {
	if adj == nil {
		return adjustmentPayload{}
	}
	return adjustmentPayload{DiscountType: string(adj.Kind()), DiscountValue: domain.AdjustmentValue(adj)}
}

type discountPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ScopeType   string `json:"scope_type"`
	ScopeTarget string `json:"scope_target,omitempty"`
	adjustmentPayload
	StartsAt    *string `json:"starts_at,omitempty"`
	EndsAt      *string `json:"ends_at,omitempty"`
	Active      bool    `json:"active"`
	Description string  `json:"description,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func buildDiscountPayload(d domain.Discount) discountPayload {
	payload := discountPayload{
		ID:                d.ID,
		Name:              d.Name,
		adjustmentPayload: buildAdjustment(d.Adjustment),
		StartsAt:          formatTimePtr(d.StartsAt),
		EndsAt:            formatTimePtr(d.EndsAt),
		Active:            d.Active,
		Description:       d.Description,
		CreatedAt:         formatTime(d.CreatedAt),
		UpdatedAt:         formatTime(d.UpdatedAt),
	}
	if d.Scope != nil {
		payload.ScopeType = string(d.Scope.Kind())
		payload.ScopeTarget = domain.ScopeTarget(d.Scope)
	}
	return payload
}

type couponPayload struct {
	Code string `json:"code"`
	adjustmentPayload
	MinPurchase          int64    `json:"min_purchase"`
	StartsAt             *string  `json:"starts_at,omitempty"`
	EndsAt               *string  `json:"ends_at,omitempty"`
	Active               bool     `json:"active"`
	UsageLimit           *int64   `json:"usage_limit,omitempty"`
	UsedCount            int64    `json:"used_count"`
	ApplicableCategories []string `json:"applicable_categories"`
	Description          string   `json:"description,omitempty"`
	CreatedAt            string   `json:"created_at,omitempty"`
	UpdatedAt            string   `json:"updated_at,omitempty"`
}

func buildCouponPayload(c domain.Coupon) couponPayload {
	categories := c.ApplicableCategories
	if categories == nil {
		categories = []string{}
	}
	return couponPayload{
		Code:                 c.Code,
		adjustmentPayload:    buildAdjustment(c.Adjustment),
		MinPurchase:          c.MinPurchase,
		StartsAt:             formatTimePtr(c.StartsAt),
		EndsAt:               formatTimePtr(c.EndsAt),
		Active:               c.Active,
		UsageLimit:           c.UsageLimit,
		UsedCount:            c.UsedCount,
		ApplicableCategories: categories,
		Description:          c.Description,
		CreatedAt:            formatTime(c.CreatedAt),
		UpdatedAt:            formatTime(c.UpdatedAt),
	}
}

type priceLinePayload struct {
	ProductID              string `json:"product_id"`
	Name                   string `json:"name,omitempty"`
	Category               string `json:"category,omitempty"`
	Image                  string `json:"image,omitempty"`
	UnitPrice              int64  `json:"unit_price"`
	Quantity               int64  `json:"quantity"`
	DiscountID             string `json:"discount_id,omitempty"`
	DiscountName           string `json:"discount_name,omitempty"`
	ProductDiscountPerUnit int64  `json:"product_discount_per_unit"`
	FinalUnitPrice         int64  `json:"final_unit_price"`
	LineTotal              int64  `json:"line_total"`
}

type priceBreakdownPayload struct {
	Items                         []priceLinePayload `json:"items"`
	Subtotal                      int64              `json:"subtotal"`
	ProductDiscountTotal          int64              `json:"product_discount_total"`
	SubtotalAfterProductDiscounts int64              `json:"subtotal_after_product_discounts"`
	CouponCode                    string             `json:"coupon_code,omitempty"`
	CouponApplied                 bool               `json:"coupon_applied"`
	CouponDiscountTotal           int64              `json:"coupon_discount_total"`
	CouponRejection               string             `json:"coupon_rejection,omitempty"`
	CouponMessage                 string             `json:"coupon_message,omitempty"`
	FinalAmount                   int64              `json:"final_amount"`
}

func buildPriceBreakdown(b services.PriceBreakdown) priceBreakdownPayload {
	items := make([]priceLinePayload, 0, len(b.Lines))
	for _, line := range b.Lines {
		items = append(items, priceLinePayload{
			ProductID:              line.ProductID,
			Name:                   line.Name,
			Category:               line.Category,
			Image:                  line.Image,
			UnitPrice:              line.UnitPrice,
			Quantity:               line.Quantity,
			DiscountID:             line.DiscountID,
			DiscountName:           line.DiscountName,
			ProductDiscountPerUnit: line.ProductDiscountPerUnit,
			FinalUnitPrice:         line.FinalUnitPrice,
			LineTotal:              line.LineTotal,
		})
	}
	payload := priceBreakdownPayload{
		Items:                         items,
		Subtotal:                      b.Subtotal,
		ProductDiscountTotal:          b.ProductDiscountTotal,
		SubtotalAfterProductDiscounts: b.SubtotalAfterProductDiscounts,
		CouponCode:                    b.CouponCode,
		CouponApplied:                 b.CouponApplied(),
		CouponDiscountTotal:           b.CouponDiscountTotal,
		FinalAmount:                   b.FinalAmount,
	}
	if b.CouponRejection != "" {
		payload.CouponRejection = string(b.CouponRejection)
		payload.CouponMessage = b.CouponRejection.Message()
	}
	return payload
}

type orderItemPayload struct {
	ProductID              string `json:"product_id"`
	Name                   string `json:"name"`
	Category               string `json:"category,omitempty"`
	Image                  string `json:"image,omitempty"`
	UnitPrice              int64  `json:"unit_price"`
	Quantity               int64  `json:"quantity"`
	DiscountID             string `json:"discount_id,omitempty"`
	ProductDiscountPerUnit int64  `json:"product_discount_per_unit"`
	FinalUnitPrice         int64  `json:"final_unit_price"`
	LineTotal              int64  `json:"line_total"`
}

type refundPayload struct {
	Status      string  `json:"status"`
	RefundID    string  `json:"refund_id,omitempty"`
	Amount      *int64  `json:"amount,omitempty"`
	InitiatedAt *string `json:"initiated_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type timelinePayload struct {
	Event       string `json:"event"`
	At          string `json:"at"`
	Description string `json:"description,omitempty"`
	Actor       string `json:"actor,omitempty"`
}

type paymentPayload struct {
	Provider string `json:"provider,omitempty"`
	IntentID string `json:"intent_id,omitempty"`
}

type orderPayload struct {
	ID                   string             `json:"id"`
	CustomerID           string             `json:"customer_id"`
	Items                []orderItemPayload `json:"items"`
	Subtotal             int64              `json:"subtotal"`
	ProductDiscountTotal int64              `json:"product_discount_total"`
	CouponCode           string             `json:"coupon_code,omitempty"`
	CouponDiscountTotal  int64              `json:"coupon_discount_total"`
	FinalAmount          int64              `json:"final_amount"`
	Status               string             `json:"status"`
	PaymentStatus        string             `json:"payment_status"`
	CancelledBy          string             `json:"cancelled_by,omitempty"`
	CancelReason         string             `json:"cancel_reason,omitempty"`
	CancelNote           string             `json:"cancel_note,omitempty"`
	CancelledAt          *string            `json:"cancelled_at,omitempty"`
	Refund               refundPayload      `json:"refund"`
	Timeline             []timelinePayload  `json:"timeline"`
	Payment              *paymentPayload    `json:"payment,omitempty"`
	CouponRedeemed       bool               `json:"coupon_redeemed"`
	CreatedAt            string             `json:"created_at"`
	UpdatedAt            string             `json:"updated_at"`
}

func buildOrderPayload(o domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemPayload{
			ProductID:              item.ProductID,
			Name:                   item.Name,
			Category:               item.Category,
			Image:                  item.Image,
			UnitPrice:              item.UnitPrice,
			Quantity:               item.Quantity,
			DiscountID:             item.DiscountID,
			ProductDiscountPerUnit: item.ProductDiscountPerUnit,
			FinalUnitPrice:         item.FinalUnitPrice,
			LineTotal:              item.LineTotal(),
		})
	}
	timeline := make([]timelinePayload, 0, len(o.Timeline))
	for _, entry := range o.Timeline {
		timeline = append(timeline, timelinePayload{
			Event:       entry.Event,
			At:          formatTime(entry.At),
			Description: entry.Description,
			Actor:       entry.Actor,
		})
	}
	payload := orderPayload{
		ID:                   o.ID,
		CustomerID:           o.CustomerID,
		Items:                items,
		Subtotal:             o.Subtotal,
		ProductDiscountTotal: o.ProductDiscountTotal,
		CouponCode:           o.CouponCode,
		CouponDiscountTotal:  o.CouponDiscountTotal,
		FinalAmount:          o.FinalAmount,
		Status:               string(o.Status),
		PaymentStatus:        string(o.PaymentStatus),
		CancelledBy:          string(o.CancelledBy),
		CancelReason:         string(o.CancelReason),
		CancelNote:           o.CancelNote,
		CancelledAt:          formatTimePtr(o.CancelledAt),
		Refund: refundPayload{
			Status:      string(o.Refund.Status),
			RefundID:    o.Refund.RefundID,
			Amount:      o.Refund.Amount,
			InitiatedAt: formatTimePtr(o.Refund.InitiatedAt),
			CompletedAt: formatTimePtr(o.Refund.CompletedAt),
			Reason:      o.Refund.Reason,
		},
		Timeline:       timeline,
		CouponRedeemed: o.CouponRedeemed,
		CreatedAt:      formatTime(o.CreatedAt),
		UpdatedAt:      formatTime(o.UpdatedAt),
	}
	if o.Payment.Provider != "" || o.Payment.IntentID != "" {
		payload.Payment = &paymentPayload{Provider: o.Payment.Provider, IntentID: o.Payment.IntentID}
	}
	return payload
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}
