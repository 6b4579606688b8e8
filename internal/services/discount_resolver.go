package services

import (
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// DiscountResolver picks the single discount that applies to a product. It holds no state
// and is safe for concurrent use.
type DiscountResolver struct{}

// ResolvedDiscount is the outcome of pricing one unit of a product.
type ResolvedDiscount struct {
	Discount       *domain.Discount
	UnitPrice      int64
	AmountPerUnit  int64
	FinalUnitPrice int64
	// Clamped is set when a flat discount exceeded the unit price and was capped.
	Clamped bool
}

// Resolve returns the applicable discount for product at now. Product scope beats category
// which beats global. Among equal precedence the most recently created discount wins, then
// the lexicographically greatest ID.
func (DiscountResolver) Resolve(product domain.ProductRef, discounts []domain.Discount, now time.Time) (domain.Discount, bool) {
	var (
		best  domain.Discount
		found bool
	)
	for _, candidate := range discounts {
		if candidate.Scope == nil || candidate.Adjustment == nil {
			continue
		}
		if !candidate.ActiveAt(now) || !candidate.Scope.Matches(product) {
			continue
		}
		if !found || outranks(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

// Price resolves the discount for product and applies it to one unit.
func (r DiscountResolver) Price(product domain.ProductRef, discounts []domain.Discount, now time.Time) ResolvedDiscount {
	result := ResolvedDiscount{
		UnitPrice:      product.UnitPrice,
		FinalUnitPrice: product.UnitPrice,
	}
	discount, ok := r.Resolve(product, discounts, now)
	if !ok {
		return result
	}
	amount := discount.Adjustment.AmountOff(product.UnitPrice)
	if flat, isFlat := discount.Adjustment.(domain.Flat); isFlat && flat.Amount > product.UnitPrice {
		result.Clamped = true
	}
	result.Discount = &discount
	result.AmountPerUnit = amount
	result.FinalUnitPrice = product.UnitPrice - amount
	return result
}

func outranks(a, b domain.Discount) bool {
	if pa, pb := a.Scope.Precedence(), b.Scope.Precedence(); pa != pb {
		return pa > pb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
