package firestore

import (
	"fmt"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const (
	discountsCollection = "discounts"
	couponsCollection   = "coupons"
	ordersCollection    = "orders"
	productsCollection  = "products"
)

// adjustmentDocument stores percentages as basis points so values round-trip exactly.
type adjustmentDocument struct {
	Kind  string `firestore:"kind"`
	Value int64  `firestore:"value"`
}

func encodeAdjustment(adj domain.Adjustment) adjustmentDocument {
	switch a := adj.(type) {
	case domain.Percentage:
		return adjustmentDocument{Kind: string(domain.AdjustmentPercentage), Value: a.BasisPoints}
	case domain.Flat:
		return adjustmentDocument{Kind: string(domain.AdjustmentFlat), Value: a.Amount}
	default:
		return adjustmentDocument{}
	}
}

func (d adjustmentDocument) decode() (domain.Adjustment, error) {
	switch domain.AdjustmentKind(d.Kind) {
	case domain.AdjustmentPercentage:
		return domain.Percentage{BasisPoints: d.Value}, nil
	case domain.AdjustmentFlat:
		return domain.Flat{Amount: d.Value}, nil
	default:
		return nil, fmt.Errorf("unknown adjustment kind %q", d.Kind)
	}
}

type discountDocument struct {
	Name        string             `firestore:"name"`
	ScopeKind   string             `firestore:"scopeKind"`
	ScopeTarget string             `firestore:"scopeTarget,omitempty"`
	Adjustment  adjustmentDocument `firestore:"adjustment"`
	StartsAt    *time.Time         `firestore:"startsAt,omitempty"`
	EndsAt      *time.Time         `firestore:"endsAt,omitempty"`
	Active      bool               `firestore:"active"`
	Description string             `firestore:"description,omitempty"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

func encodeDiscount(d domain.Discount) discountDocument {
	doc := discountDocument{
		Name:        d.Name,
		Adjustment:  encodeAdjustment(d.Adjustment),
		StartsAt:    d.StartsAt,
		EndsAt:      d.EndsAt,
		Active:      d.Active,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.Scope != nil {
		doc.ScopeKind = string(d.Scope.Kind())
		doc.ScopeTarget = domain.ScopeTarget(d.Scope)
	}
	return doc
}

func decodeDiscount(id string, doc discountDocument) (domain.Discount, error) {
	scope, err := domain.NewDiscountScope(doc.ScopeKind, doc.ScopeTarget)
	if err != nil {
		return domain.Discount{}, fmt.Errorf("discount %s: %w", id, err)
	}
	adj, err := doc.Adjustment.decode()
	if err != nil {
		return domain.Discount{}, fmt.Errorf("discount %s: %w", id, err)
	}
	return domain.Discount{
		ID:          id,
		Name:        doc.Name,
		Scope:       scope,
		Adjustment:  adj,
		StartsAt:    utcPtr(doc.StartsAt),
		EndsAt:      utcPtr(doc.EndsAt),
		Active:      doc.Active,
		Description: doc.Description,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}, nil
}

type couponDocument struct {
	Adjustment           adjustmentDocument `firestore:"adjustment"`
	MinPurchase          int64              `firestore:"minPurchase"`
	StartsAt             *time.Time         `firestore:"startsAt,omitempty"`
	EndsAt               *time.Time         `firestore:"endsAt,omitempty"`
	Active               bool               `firestore:"active"`
	UsageLimit           *int64             `firestore:"usageLimit,omitempty"`
	UsedCount            int64              `firestore:"usedCount"`
	ApplicableCategories []string           `firestore:"applicableCategories,omitempty"`
	Description          string             `firestore:"description,omitempty"`
	CreatedAt            time.Time          `firestore:"createdAt"`
	UpdatedAt            time.Time          `firestore:"updatedAt"`
}

func encodeCoupon(c domain.Coupon) couponDocument {
	return couponDocument{
		Adjustment:           encodeAdjustment(c.Adjustment),
		MinPurchase:          c.MinPurchase,
		StartsAt:             c.StartsAt,
		EndsAt:               c.EndsAt,
		Active:               c.Active,
		UsageLimit:           c.UsageLimit,
		UsedCount:            c.UsedCount,
		ApplicableCategories: c.ApplicableCategories,
		Description:          c.Description,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
}

func decodeCoupon(code string, doc couponDocument) (domain.Coupon, error) {
	adj, err := doc.Adjustment.decode()
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("coupon %s: %w", code, err)
	}
	return domain.Coupon{
		Code:                 code,
		Adjustment:           adj,
		MinPurchase:          doc.MinPurchase,
		StartsAt:             utcPtr(doc.StartsAt),
		EndsAt:               utcPtr(doc.EndsAt),
		Active:               doc.Active,
		UsageLimit:           doc.UsageLimit,
		UsedCount:            doc.UsedCount,
		ApplicableCategories: doc.ApplicableCategories,
		Description:          doc.Description,
		CreatedAt:            doc.CreatedAt.UTC(),
		UpdatedAt:            doc.UpdatedAt.UTC(),
	}, nil
}

type orderItemDocument struct {
	ProductID              string `firestore:"productId"`
	Name                   string `firestore:"name"`
	Category               string `firestore:"category,omitempty"`
	Image                  string `firestore:"image,omitempty"`
	UnitPrice              int64  `firestore:"unitPrice"`
	Quantity               int64  `firestore:"quantity"`
	DiscountID             string `firestore:"discountId,omitempty"`
	ProductDiscountPerUnit int64  `firestore:"productDiscountPerUnit"`
	FinalUnitPrice         int64  `firestore:"finalUnitPrice"`
}

type refundDocument struct {
	Status      string     `firestore:"status"`
	RefundID    string     `firestore:"refundId,omitempty"`
	Amount      *int64     `firestore:"amount,omitempty"`
	InitiatedAt *time.Time `firestore:"initiatedAt,omitempty"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty"`
	Reason      string     `firestore:"reason,omitempty"`
}

type timelineDocument struct {
	Event       string    `firestore:"event"`
	At          time.Time `firestore:"at"`
	Description string    `firestore:"description,omitempty"`
	Actor       string    `firestore:"actor,omitempty"`
}

type orderDocument struct {
	CustomerID           string              `firestore:"customerId"`
	Items                []orderItemDocument `firestore:"items"`
	Subtotal             int64               `firestore:"subtotal"`
	ProductDiscountTotal int64               `firestore:"productDiscountTotal"`
	CouponCode           string              `firestore:"couponCode,omitempty"`
	CouponDiscountTotal  int64               `firestore:"couponDiscountTotal"`
	FinalAmount          int64               `firestore:"finalAmount"`
	PaymentStatus        string              `firestore:"paymentStatus"`
	Status               string              `firestore:"status"`
	CancelledBy          string              `firestore:"cancelledBy,omitempty"`
	CancelReason         string              `firestore:"cancelReason,omitempty"`
	CancelNote           string              `firestore:"cancelNote,omitempty"`
	CancelledAt          *time.Time          `firestore:"cancelledAt,omitempty"`
	Refund               refundDocument      `firestore:"refund"`
	Timeline             []timelineDocument  `firestore:"timeline"`
	PaymentProvider      string              `firestore:"paymentProvider,omitempty"`
	PaymentIntentID      string              `firestore:"paymentIntentId,omitempty"`
	CouponRedeemed       bool                `firestore:"couponRedeemed"`
	CreatedAt            time.Time           `firestore:"createdAt"`
	UpdatedAt            time.Time           `firestore:"updatedAt"`
}

func encodeOrder(o domain.Order) orderDocument {
	doc := orderDocument{
		CustomerID:           o.CustomerID,
		Items:                make([]orderItemDocument, 0, len(o.Items)),
		Subtotal:             o.Subtotal,
		ProductDiscountTotal: o.ProductDiscountTotal,
		CouponCode:           o.CouponCode,
		CouponDiscountTotal:  o.CouponDiscountTotal,
		FinalAmount:          o.FinalAmount,
		PaymentStatus:        string(o.PaymentStatus),
		Status:               string(o.Status),
		CancelledBy:          string(o.CancelledBy),
		CancelReason:         string(o.CancelReason),
		CancelNote:           o.CancelNote,
		CancelledAt:          o.CancelledAt,
		Refund: refundDocument{
			Status:      string(o.Refund.Status),
			RefundID:    o.Refund.RefundID,
			Amount:      o.Refund.Amount,
			InitiatedAt: o.Refund.InitiatedAt,
			CompletedAt: o.Refund.CompletedAt,
			Reason:      o.Refund.Reason,
		},
		Timeline:        make([]timelineDocument, 0, len(o.Timeline)),
		PaymentProvider: o.Payment.Provider,
		PaymentIntentID: o.Payment.IntentID,
		CouponRedeemed:  o.CouponRedeemed,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	for _, entry := range o.Timeline {
		doc.Timeline = append(doc.Timeline, timelineDocument{
			Event:       entry.Event,
			At:          entry.At.UTC(),
			Description: entry.Description,
			Actor:       entry.Actor,
		})
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                   id,
		CustomerID:           doc.CustomerID,
		Items:                make([]domain.OrderItem, 0, len(doc.Items)),
		Subtotal:             doc.Subtotal,
		ProductDiscountTotal: doc.ProductDiscountTotal,
		CouponCode:           doc.CouponCode,
		CouponDiscountTotal:  doc.CouponDiscountTotal,
		FinalAmount:          doc.FinalAmount,
		PaymentStatus:        domain.PaymentStatus(doc.PaymentStatus),
		Status:               domain.OrderStatus(doc.Status),
		CancelledBy:          domain.CancelActor(doc.CancelledBy),
		CancelReason:         domain.CancelReason(doc.CancelReason),
		CancelNote:           doc.CancelNote,
		CancelledAt:          utcPtr(doc.CancelledAt),
		Refund: domain.RefundState{
			Status:      domain.RefundStatus(doc.Refund.Status),
			RefundID:    doc.Refund.RefundID,
			Amount:      doc.Refund.Amount,
			InitiatedAt: utcPtr(doc.Refund.InitiatedAt),
			CompletedAt: utcPtr(doc.Refund.CompletedAt),
			Reason:      doc.Refund.Reason,
		},
		Payment:        domain.PaymentReference{Provider: doc.PaymentProvider, IntentID: doc.PaymentIntentID},
		CouponRedeemed: doc.CouponRedeemed,
		CreatedAt:      doc.CreatedAt.UTC(),
		UpdatedAt:      doc.UpdatedAt.UTC(),
	}
	if order.Refund.Status == "" {
		order.Refund.Status = domain.RefundStatusNone
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	for _, entry := range doc.Timeline {
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			Event:       entry.Event,
			At:          entry.At.UTC(),
			Description: entry.Description,
			Actor:       entry.Actor,
		})
	}
	return order
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

type productDocument struct {
	Name      string `firestore:"name"`
	Category  string `firestore:"category"`
	Image     string `firestore:"image,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
}

func (d productDocument) decode(id string) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Category:  d.Category,
		Image:     d.Image,
		UnitPrice: d.UnitPrice,
	}
}
