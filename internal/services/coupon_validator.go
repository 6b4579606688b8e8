package services

import (
	"slices"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// CouponRejection is the reason a coupon cannot be applied.
type CouponRejection string

const (
	CouponRejectionNotFound          CouponRejection = "not_found"
	CouponRejectionInactive          CouponRejection = "inactive"
	CouponRejectionNotYetStarted     CouponRejection = "not_yet_started"
	CouponRejectionExpired           CouponRejection = "expired"
	CouponRejectionUsageLimitReached CouponRejection = "usage_limit_reached"
	CouponRejectionCategoryMismatch  CouponRejection = "category_mismatch"
	CouponRejectionBelowMinimum      CouponRejection = "below_minimum_purchase"
)

// Message is the customer facing explanation of the rejection.
func (r CouponRejection) Message() string {
	switch r {
	case CouponRejectionNotFound:
		return "The coupon code does not exist."
	case CouponRejectionInactive:
		return "This coupon is not active."
	case CouponRejectionNotYetStarted:
		return "This coupon is not valid yet."
	case CouponRejectionExpired:
		return "This coupon has expired."
	case CouponRejectionUsageLimitReached:
		return "This coupon has reached its usage limit."
	case CouponRejectionCategoryMismatch:
		return "This coupon does not apply to any item in your cart."
	case CouponRejectionBelowMinimum:
		return "Your cart total is below the minimum purchase for this coupon."
	default:
		return "This coupon cannot be applied."
	}
}

// CouponCart is the part of the cart a coupon is evaluated against.
type CouponCart struct {
	// Total is the cart amount after product discounts.
	Total      int64
	Categories []string
}

// CouponResult is the outcome of validating a coupon against a cart.
type CouponResult struct {
	Code           string
	Accepted       bool
	Rejection      CouponRejection
	DiscountAmount int64
	Coupon         *domain.Coupon
}

// CouponValidator checks coupon eligibility. It never mutates the coupon.
type CouponValidator struct{}

// Validate runs the eligibility checks in order and stops at the first failure. A nil coupon
// means the code was not found.
func (CouponValidator) Validate(code string, cart CouponCart, coupon *domain.Coupon, now time.Time) CouponResult {
	result := CouponResult{Code: domain.NormalizeCouponCode(code)}
	reject := func(reason CouponRejection) CouponResult {
		result.Rejection = reason
		return result
	}

	if coupon == nil {
		return reject(CouponRejectionNotFound)
	}
	snapshot := coupon.Clone()
	result.Coupon = &snapshot

	switch {
	case !coupon.Active:
		return reject(CouponRejectionInactive)
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return reject(CouponRejectionNotYetStarted)
	case coupon.EndsAt != nil && now.After(*coupon.EndsAt):
		return reject(CouponRejectionExpired)
	case coupon.Exhausted():
		return reject(CouponRejectionUsageLimitReached)
	case !coupon.AppliesToAll() && !anyCategoryMatches(coupon.ApplicableCategories, cart.Categories):
		return reject(CouponRejectionCategoryMismatch)
	case cart.Total < coupon.MinPurchase:
		return reject(CouponRejectionBelowMinimum)
	}

	result.Accepted = true
	if coupon.Adjustment != nil {
		result.DiscountAmount = coupon.Adjustment.AmountOff(cart.Total)
	}
	return result
}

func anyCategoryMatches(allowed, present []string) bool {
	for _, category := range present {
		if slices.Contains(allowed, category) {
			return true
		}
	}
	return false
}
