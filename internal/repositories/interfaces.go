package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// DiscountListFilter narrows discount listings.
type DiscountListFilter struct {
	// ActiveOnly limits results to discounts flagged active. Date windows are evaluated by callers.
	ActiveOnly bool
}

// DiscountRepository persists automatic discounts.
type DiscountRepository interface {
	Insert(ctx context.Context, discount domain.Discount) error
	Update(ctx context.Context, discount domain.Discount) error
	Delete(ctx context.Context, discountID string) error
	FindByID(ctx context.Context, discountID string) (domain.Discount, error)
	List(ctx context.Context, filter DiscountListFilter) ([]domain.Discount, error)
}

// ProductCatalog is the source of truth for product prices and categories.
type ProductCatalog interface {
	// FindProducts returns the known products keyed by id. Unknown ids are absent from the map.
	FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// CouponListFilter narrows coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
}

// CouponRepository persists coupons keyed by their normalised code.
type CouponRepository interface {
	Insert(ctx context.Context, coupon domain.Coupon) error
	// Update replaces the editable fields and returns the stored coupon. UsedCount and
	// CreatedAt keep their stored values. A UsageLimit below the stored UsedCount yields a
	// *CouponUsageError with CouponUsageLimitBelowUsed.
	Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error)
	Delete(ctx context.Context, code string) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) ([]domain.Coupon, error)
	// IncrementUsage atomically bumps UsedCount when it is still below UsageLimit and returns the
	// updated coupon. Exhaustion yields a *CouponUsageError with CouponUsageLimitReached.
	IncrementUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error)
	// ReleaseUsage undoes one IncrementUsage. UsedCount never drops below zero.
	ReleaseUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error)
}

// OrderExpectation lists the stored values an order update is conditional on. Empty fields
// are not compared. CouponRedeemed is compared only when set.
type OrderExpectation struct {
	Status         domain.OrderStatus
	PaymentStatus  domain.PaymentStatus
	RefundStatus   domain.RefundStatus
	CouponRedeemed *bool
}

// Matches reports whether the stored order still satisfies the expectation.
func (e OrderExpectation) Matches(order domain.Order) bool {
	if e.Status != "" && order.Status != e.Status {
		return false
	}
	if e.PaymentStatus != "" && order.PaymentStatus != e.PaymentStatus {
		return false
	}
	if e.RefundStatus != "" && order.Refund.Status != e.RefundStatus {
		return false
	}
	if e.CouponRedeemed != nil && order.CouponRedeemed != *e.CouponRedeemed {
		return false
	}
	return true
}

// ExpectationFor captures the current lifecycle values of an order.
func ExpectationFor(order domain.Order) OrderExpectation {
	redeemed := order.CouponRedeemed
	return OrderExpectation{
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		RefundStatus:   order.Refund.Status,
		CouponRedeemed: &redeemed,
	}
}

// OrderRepository persists orders and guards lifecycle updates with compare-and-set semantics.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateIf replaces the stored order only when it still matches expect; otherwise it returns
	// a conflict RepositoryError.
	UpdateIf(ctx context.Context, order domain.Order, expect OrderExpectation) error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
