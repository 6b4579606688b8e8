package domain

import (
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// Coupon is a customer-entered code applied on top of discounted prices.
type Coupon struct {
	Code                 string
	Adjustment           Adjustment
	MinPurchase          int64
	StartsAt             *time.Time
	EndsAt               *time.Time
	Active               bool
	UsageLimit           *int64
	UsedCount            int64
	ApplicableCategories []string
	Description          string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NormalizeCouponCode folds full-width characters to ASCII and upper-cases the code.
func NormalizeCouponCode(code string) string {
	folded := width.Fold.String(strings.TrimSpace(code))
	return strings.TrimSpace(cases.Upper(language.Und).String(folded))
}

// Exhausted reports whether the coupon has no remaining redemptions.
func (c Coupon) Exhausted() bool {
	return c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit
}

// AppliesToAll reports whether the coupon has no category restriction.
func (c Coupon) AppliesToAll() bool {
	return len(c.ApplicableCategories) == 0
}

// Validate checks structural constraints of the coupon.
func (c Coupon) Validate() error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	if c.Adjustment == nil {
		return errors.New("adjustment is required")
	}
	if err := c.Adjustment.Validate(); err != nil {
		return err
	}
	if c.MinPurchase < 0 {
		return errors.New("minimum purchase cannot be negative")
	}
	if c.UsageLimit != nil && *c.UsageLimit < 1 {
		return errors.New("usage limit must be at least 1")
	}
	if c.UsedCount < 0 {
		return errors.New("used count cannot be negative")
	}
	if c.UsageLimit != nil && *c.UsageLimit < c.UsedCount {
		return errors.New("usage limit cannot be below the current used count")
	}
	if c.StartsAt != nil && c.EndsAt != nil && c.EndsAt.Before(*c.StartsAt) {
		return errors.New("end date must not precede start date")
	}
	return nil
}

// Clone returns a copy that shares no mutable state with c.
func (c Coupon) Clone() Coupon {
	out := c
	out.StartsAt = cloneTime(c.StartsAt)
	out.EndsAt = cloneTime(c.EndsAt)
	out.ApplicableCategories = slices.Clone(c.ApplicableCategories)
	if c.UsageLimit != nil {
		limit := *c.UsageLimit
		out.UsageLimit = &limit
	}
	return out
}
