package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// ErrPricingInvalidInput signals malformed cart lines such as a zero quantity or negative price.
var ErrPricingInvalidInput = errors.New("pricing: invalid input")

// CartLine is a product and quantity submitted for pricing.
type CartLine struct {
	ProductID string
	Name      string
	Category  string
	Image     string
	UnitPrice int64
	Quantity  int64
}

// PriceLine is the priced outcome of one cart line.
type PriceLine struct {
	CartLine
	DiscountID             string
	DiscountName           string
	ProductDiscountPerUnit int64
	FinalUnitPrice         int64
	LineSubtotal           int64
	LineDiscount           int64
	LineTotal              int64
}

// CouponCandidate is a coupon code with the coupon snapshot loaded for it (nil when unknown).
type CouponCandidate struct {
	Code   string
	Coupon *domain.Coupon
}

// PriceBreakdown holds the totals of a priced cart.
type PriceBreakdown struct {
	Lines                         []PriceLine
	Subtotal                      int64
	ProductDiscountTotal          int64
	SubtotalAfterProductDiscounts int64
	CouponCode                    string
	CouponDiscountTotal           int64
	CouponRejection               CouponRejection
	FinalAmount                   int64
}

// CouponApplied reports whether a coupon reduced the total.
func (b PriceBreakdown) CouponApplied() bool {
	return b.CouponCode != "" && b.CouponRejection == ""
}

// PriceCalculator composes the discount resolver and coupon validator into cart totals.
type PriceCalculator struct {
	resolver  DiscountResolver
	validator CouponValidator
	logger    func(context.Context, string, map[string]any)
}

// NewPriceCalculator builds a calculator. logger may be nil.
func NewPriceCalculator(logger func(context.Context, string, map[string]any)) *PriceCalculator {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &PriceCalculator{logger: logger}
}

// Compute prices lines against the discount snapshot and optional coupon at now.
func (c *PriceCalculator) Compute(ctx context.Context, lines []CartLine, discounts []domain.Discount, coupon *CouponCandidate, now time.Time) (PriceBreakdown, error) {
	if len(lines) == 0 {
		return PriceBreakdown{}, fmt.Errorf("%w: cart has no items", ErrPricingInvalidInput)
	}

	breakdown := PriceBreakdown{Lines: make([]PriceLine, 0, len(lines))}
	categories := make([]string, 0, len(lines))

	for idx, line := range lines {
		if err := validateCartLine(idx, line); err != nil {
			return PriceBreakdown{}, err
		}
		resolved := c.resolver.Price(domain.ProductRef{
			ID:        line.ProductID,
			Category:  line.Category,
			UnitPrice: line.UnitPrice,
		}, discounts, now)
		if resolved.Clamped {
			c.logger(ctx, "pricing_discount_clamped", map[string]any{
				"productId":  line.ProductID,
				"discountId": resolved.Discount.ID,
				"unitPrice":  line.UnitPrice,
				"applied":    resolved.AmountPerUnit,
			})
		}

		subtotal, err := domain.CheckedMul(line.UnitPrice, line.Quantity)
		if err != nil {
			return PriceBreakdown{}, fmt.Errorf("%w: line %d subtotal overflow", ErrPricingInvalidInput, idx)
		}
		lineDiscount := resolved.AmountPerUnit * line.Quantity

		priced := PriceLine{
			CartLine:               line,
			ProductDiscountPerUnit: resolved.AmountPerUnit,
			FinalUnitPrice:         resolved.FinalUnitPrice,
			LineSubtotal:           subtotal,
			LineDiscount:           lineDiscount,
			LineTotal:              subtotal - lineDiscount,
		}
		if resolved.Discount != nil {
			priced.DiscountID = resolved.Discount.ID
			priced.DiscountName = resolved.Discount.Name
		}
		breakdown.Lines = append(breakdown.Lines, priced)

		if breakdown.Subtotal, err = domain.CheckedAdd(breakdown.Subtotal, subtotal); err != nil {
			return PriceBreakdown{}, fmt.Errorf("%w: cart subtotal overflow", ErrPricingInvalidInput)
		}
		breakdown.ProductDiscountTotal += lineDiscount
		if line.Category != "" && !slices.Contains(categories, line.Category) {
			categories = append(categories, line.Category)
		}
	}

	breakdown.SubtotalAfterProductDiscounts = breakdown.Subtotal - breakdown.ProductDiscountTotal

	if coupon != nil && strings.TrimSpace(coupon.Code) != "" {
		result := c.validator.Validate(coupon.Code, CouponCart{
			Total:      breakdown.SubtotalAfterProductDiscounts,
			Categories: categories,
		}, coupon.Coupon, now)
		breakdown.CouponCode = result.Code
		if result.Accepted {
			breakdown.CouponDiscountTotal = result.DiscountAmount
		} else {
			breakdown.CouponRejection = result.Rejection
		}
	}

	breakdown.FinalAmount = domain.ClampAmount(
		breakdown.Subtotal-breakdown.ProductDiscountTotal-breakdown.CouponDiscountTotal,
		breakdown.Subtotal,
	)
	return breakdown, nil
}

func validateCartLine(idx int, line CartLine) error {
	switch {
	case strings.TrimSpace(line.ProductID) == "":
		return fmt.Errorf("%w: line %d product id is required", ErrPricingInvalidInput, idx)
	case line.Quantity < 1:
		return fmt.Errorf("%w: line %d quantity must be at least 1", ErrPricingInvalidInput, idx)
	case line.UnitPrice < 0:
		return fmt.Errorf("%w: line %d unit price cannot be negative", ErrPricingInvalidInput, idx)
	}
	return nil
}
