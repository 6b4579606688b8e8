package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ScopeKind names the targeting level of a discount.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeCategory ScopeKind = "category"
	ScopeProduct  ScopeKind = "product"
)

// DiscountScope is a closed set of targeting rules. Only the types in this package implement it.
type DiscountScope interface {
	Kind() ScopeKind
	// Precedence is higher for more specific scopes (product > category > global).
	Precedence() int
	Matches(product ProductRef) bool
	sealedScope()
}

// GlobalScope applies to every product.
type GlobalScope struct{}

// CategoryScope applies to products whose category equals Category.
type CategoryScope struct {
	Category string
}

// ProductScope applies to a single product.
type ProductScope struct {
	ProductID string
}

func (GlobalScope) Kind() ScopeKind         { return ScopeGlobal }
func (GlobalScope) Precedence() int         { return 1 }
func (GlobalScope) Matches(ProductRef) bool { return true }
func (GlobalScope) sealedScope()            {}

func (CategoryScope) Kind() ScopeKind { return ScopeCategory }
func (CategoryScope) Precedence() int { return 2 }
func (CategoryScope) sealedScope()    {}

func (s CategoryScope) Matches(p ProductRef) bool {
	return s.Category != "" && s.Category == p.Category
}

func (ProductScope) Kind() ScopeKind { return ScopeProduct }
func (ProductScope) Precedence() int { return 3 }
func (ProductScope) sealedScope()    {}

func (s ProductScope) Matches(p ProductRef) bool {
	return s.ProductID != "" && s.ProductID == p.ID
}

// ScopeTarget returns the category or product id the scope points at.
func ScopeTarget(scope DiscountScope) string {
	switch s := scope.(type) {
	case CategoryScope:
		return s.Category
	case ProductScope:
		return s.ProductID
	default:
		return ""
	}
}

// NewDiscountScope builds a scope from its wire representation.
func NewDiscountScope(kind, target string) (DiscountScope, error) {
	target = strings.TrimSpace(target)
	switch ScopeKind(strings.ToLower(strings.TrimSpace(kind))) {
	case ScopeGlobal:
		return GlobalScope{}, nil
	case ScopeCategory:
		if target == "" {
			return nil, errors.New("category scope requires a category")
		}
		return CategoryScope{Category: target}, nil
	case ScopeProduct:
		if target == "" {
			return nil, errors.New("product scope requires a product id")
		}
		return ProductScope{ProductID: target}, nil
	default:
		return nil, fmt.Errorf("unknown discount scope %q", kind)
	}
}

// AdjustmentKind names the arithmetic of a discount or coupon.
type AdjustmentKind string

const (
	AdjustmentPercentage AdjustmentKind = "percentage"
	AdjustmentFlat       AdjustmentKind = "flat"
)

// Adjustment is a closed set of price reductions shared by discounts and coupons.
type Adjustment interface {
	Kind() AdjustmentKind
	// AmountOff returns the reduction for base, always within [0, base].
	AmountOff(base int64) int64
	Validate() error
	sealedAdjustment()
}

// Percentage reduces by BasisPoints/10000 of the base, rounded half-up.
type Percentage struct {
	BasisPoints int64
}

// Flat reduces by a fixed amount in minor units, capped at the base.
type Flat struct {
	Amount int64
}

func (Percentage) Kind() AdjustmentKind { return AdjustmentPercentage }
func (Percentage) sealedAdjustment()    {}

func (p Percentage) AmountOff(base int64) int64 {
	return ClampAmount(PercentOf(base, p.BasisPoints), base)
}

func (p Percentage) Validate() error {
	if p.BasisPoints < 0 || p.BasisPoints > BasisPointsScale {
		return fmt.Errorf("percentage must be between 0 and 100, got %.2f", BasisPointsToPercent(p.BasisPoints))
	}
	return nil
}

func (Flat) Kind() AdjustmentKind { return AdjustmentFlat }
func (Flat) sealedAdjustment()    {}

func (f Flat) AmountOff(base int64) int64 {
	return ClampAmount(f.Amount, base)
}

func (f Flat) Validate() error {
	if f.Amount < 0 {
		return fmt.Errorf("flat amount cannot be negative, got %d", f.Amount)
	}
	return nil
}

// ProductRef is the minimal product snapshot the pricing engine needs.
type ProductRef struct {
	ID        string
	Category  string
	UnitPrice int64
}

// Discount is an automatic price reduction targeted by scope.
type Discount struct {
	ID          string
	Name        string
	Scope       DiscountScope
	Adjustment  Adjustment
	StartsAt    *time.Time
	EndsAt      *time.Time
	Active      bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActiveAt reports whether the discount applies at the given instant. Window bounds are inclusive.
func (d Discount) ActiveAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// Clone returns a copy that shares no mutable state with d.
func (d Discount) Clone() Discount {
	out := d
	out.StartsAt = cloneTime(d.StartsAt)
	out.EndsAt = cloneTime(d.EndsAt)
	return out
}

// Validate checks structural constraints of the discount.
func (d Discount) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	if d.Scope == nil {
		return errors.New("scope is required")
	}
	if d.Adjustment == nil {
		return errors.New("adjustment is required")
	}
	if err := d.Adjustment.Validate(); err != nil {
		return err
	}
	if d.StartsAt != nil && d.EndsAt != nil && d.EndsAt.Before(*d.StartsAt) {
		return errors.New("end date must not precede start date")
	}
	return nil
}

// NewAdjustment builds an adjustment from its wire representation. Percentage values are
// percents (12.5 means 12.5%); flat values are minor units.
func NewAdjustment(kind string, value float64) (Adjustment, error) {
	switch AdjustmentKind(strings.ToLower(strings.TrimSpace(kind))) {
	case AdjustmentPercentage:
		bps, ok := PercentToBasisPoints(value)
		if !ok {
			return nil, fmt.Errorf("percentage must be between 0 and 100, got %v", value)
		}
		return Percentage{BasisPoints: bps}, nil
	case AdjustmentFlat:
		if value < 0 || value != float64(int64(value)) {
			return nil, fmt.Errorf("flat amount must be a non-negative integer, got %v", value)
		}
		return Flat{Amount: int64(value)}, nil
	default:
		return nil, fmt.Errorf("unknown adjustment type %q", kind)
	}
}

// AdjustmentValue renders an adjustment back to its wire value.
func AdjustmentValue(adj Adjustment) float64 {
	switch a := adj.(type) {
	case Percentage:
		return BasisPointsToPercent(a.BasisPoints)
	case Flat:
		return float64(a.Amount)
	default:
		return 0
	}
}
