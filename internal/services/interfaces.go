package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// DiscountService exposes the active discount snapshot and admin maintenance of discounts.
type DiscountService interface {
	ListActive(ctx context.Context) ([]domain.Discount, error)
	ListDiscounts(ctx context.Context) ([]domain.Discount, error)
	CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.Discount, error)
	UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (domain.Discount, error)
	DeleteDiscount(ctx context.Context, discountID string) error
}

// CouponService validates coupons, records redemptions and maintains coupons for admins.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error)
	ConfirmUsage(ctx context.Context, cmd ConfirmCouponUsageCommand) (CouponRedemption, error)
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) error
}

// OrderService prices carts, places orders and drives their lifecycle.
type OrderService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (PriceBreakdown, error)
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	Get(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error)
	InitiateRefund(ctx context.Context, cmd InitiateRefundCommand) (domain.Order, error)
	UpdateRefundStatus(ctx context.Context, cmd UpdateRefundStatusCommand) (domain.Order, error)
}

// SystemService reports dependency health together with build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// UpsertDiscountCommand carries admin discount input. ID is ignored on create.
type UpsertDiscountCommand struct {
	ID          string
	Name        string
	Scope       domain.DiscountScope
	Adjustment  domain.Adjustment
	StartsAt    *time.Time
	EndsAt      *time.Time
	Active      bool
	Description string
}

// UpsertCouponCommand carries admin coupon input. UsedCount is never taken from input.
type UpsertCouponCommand struct {
	Code                 string
	Adjustment           domain.Adjustment
	MinPurchase          int64
	StartsAt             *time.Time
	EndsAt               *time.Time
	Active               bool
	UsageLimit           *int64
	ApplicableCategories []string
	Description          string
}

// ValidateCouponCommand asks whether a code applies to a cart. When Items is set the cart
// total and categories are recomputed server-side; otherwise CartTotal and Categories are used.
type ValidateCouponCommand struct {
	Code       string
	CartTotal  int64
	Categories []string
	Items      []CartLine
}

// CouponValidation is the advisory answer of CouponService.Validate.
type CouponValidation struct {
	Code           string
	Valid          bool
	Reason         CouponRejection
	Message        string
	CartTotal      int64
	DiscountAmount int64
	FinalAmount    int64
	Coupon         *domain.Coupon
}

// ConfirmCouponUsageCommand records one redemption. When OrderID is set the order is marked
// redeemed and repeated confirmations for that order are no-ops.
// CustomerID, when set, requires OrderID and restricts it to that customer's orders.
type ConfirmCouponUsageCommand struct {
	Code       string
	OrderID    string
	ActorID    string
	CustomerID string
}

// CouponRedemption is the outcome of ConfirmUsage.
type CouponRedemption struct {
	Coupon          domain.Coupon
	AlreadyRedeemed bool
}

// QuoteCommand prices a cart without persisting anything.
type QuoteCommand struct {
	Items      []CartLine
	CouponCode string
}

// CreateOrderCommand places an order. Totals are always recomputed from Items.
type CreateOrderCommand struct {
	CustomerID string
	Items      []CartLine
	CouponCode string
	Payment    domain.PaymentReference
}

// UpdateOrderStatusCommand is a staff status change.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Status         domain.OrderStatus
	ActorID        string
	ExpectedStatus *domain.OrderStatus
}

// CancelOrderCommand cancels an order on behalf of a customer, admin or the system.
type CancelOrderCommand struct {
	OrderID        string
	Actor          domain.CancelActor
	ActorID        string
	Reason         domain.CancelReason
	Note           string
	ExpectedStatus *domain.OrderStatus
}

// CancelOrderResult returns the cancelled order and whether a refund may now be initiated.
type CancelOrderResult struct {
	Order      domain.Order
	Refundable bool
}

// UpdatePaymentStatusCommand records a payment status change.
type UpdatePaymentStatusCommand struct {
	OrderID string
	Status  domain.PaymentStatus
	ActorID string
	// IntentID attaches the provider payment intent when the order has none yet.
	IntentID string
	Provider string
}

// InitiateRefundCommand requests a refund.
type InitiateRefundCommand struct {
	OrderID string
	Amount  *int64
	Reason  string
	ActorID string
}

// UpdateRefundStatusCommand advances the refund sub-state.
type UpdateRefundStatusCommand struct {
	OrderID     string
	Status      domain.RefundStatus
	ConfirmUndo bool
	ActorID     string
}
