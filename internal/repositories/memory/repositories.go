package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// DiscountRepository stores discounts in memory.
type DiscountRepository struct{ store *Store }

// CouponRepository stores coupons in memory keyed by normalised code.
type CouponRepository struct{ store *Store }

// OrderRepository stores orders in memory.
type OrderRepository struct{ store *Store }

// ProductCatalog serves products seeded with Put.
type ProductCatalog struct{ store *Store }

var (
	_ repositories.DiscountRepository = (*DiscountRepository)(nil)
	_ repositories.CouponRepository   = (*CouponRepository)(nil)
	_ repositories.OrderRepository    = (*OrderRepository)(nil)
	_ repositories.ProductCatalog     = (*ProductCatalog)(nil)
)

func (s *Store) Discounts() *DiscountRepository { return &DiscountRepository{store: s} }
func (s *Store) Coupons() *CouponRepository     { return &CouponRepository{store: s} }
func (s *Store) Orders() *OrderRepository       { return &OrderRepository{store: s} }
func (s *Store) Products() *ProductCatalog      { return &ProductCatalog{store: s} }

// Put adds or replaces catalog entries.
func (c *ProductCatalog) Put(products ...domain.Product) {
	defer c.store.lock()()
	for _, product := range products {
		c.store.products[product.ID] = product
	}
}

func (c *ProductCatalog) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	defer c.store.lock()()
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := c.store.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (r *DiscountRepository) Insert(ctx context.Context, discount domain.Discount) error {
	defer r.store.lock()()
	if _, ok := r.store.discounts[discount.ID]; ok {
		return conflict("discounts.insert", "discount "+discount.ID+" already exists")
	}
	r.store.discounts[discount.ID] = discount.Clone()
	return nil
}

func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) error {
	defer r.store.lock()()
	if _, ok := r.store.discounts[discount.ID]; !ok {
		return notFound("discounts.update", discount.ID)
	}
	r.store.discounts[discount.ID] = discount.Clone()
	return nil
}

func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	defer r.store.lock()()
	if _, ok := r.store.discounts[discountID]; !ok {
		return notFound("discounts.delete", discountID)
	}
	delete(r.store.discounts, discountID)
	return nil
}

func (r *DiscountRepository) FindByID(ctx context.Context, discountID string) (domain.Discount, error) {
	defer r.store.lock()()
	discount, ok := r.store.discounts[discountID]
	if !ok {
		return domain.Discount{}, notFound("discounts.get", discountID)
	}
	return discount.Clone(), nil
}

func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) ([]domain.Discount, error) {
	defer r.store.lock()()
	out := make([]domain.Discount, 0, len(r.store.discounts))
	for _, discount := range r.store.discounts {
		if filter.ActiveOnly && !discount.Active {
			continue
		}
		out = append(out, discount.Clone())
	}
	slices.SortFunc(out, func(a, b domain.Discount) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	defer r.store.lock()()
	if _, ok := r.store.coupons[coupon.Code]; ok {
		return conflict("coupons.insert", "coupon "+coupon.Code+" already exists")
	}
	r.store.coupons[coupon.Code] = coupon.Clone()
	return nil
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	defer r.store.lock()()
	current, ok := r.store.coupons[coupon.Code]
	if !ok {
		return domain.Coupon{}, notFound("coupons.update", coupon.Code)
	}
	if coupon.UsageLimit != nil && *coupon.UsageLimit < current.UsedCount {
		return domain.Coupon{}, repositories.NewCouponUsageError("coupons.update", repositories.CouponUsageLimitBelowUsed, "usage limit is below the current used count")
	}
	next := coupon.Clone()
	next.UsedCount = current.UsedCount
	next.CreatedAt = current.CreatedAt
	r.store.coupons[coupon.Code] = next
	return next.Clone(), nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	defer r.store.lock()()
	if _, ok := r.store.coupons[code]; !ok {
		return notFound("coupons.delete", code)
	}
	delete(r.store.coupons, code)
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	defer r.store.lock()()
	coupon, ok := r.store.coupons[code]
	if !ok {
		return domain.Coupon{}, notFound("coupons.get", code)
	}
	return coupon.Clone(), nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) ([]domain.Coupon, error) {
	defer r.store.lock()()
	out := make([]domain.Coupon, 0, len(r.store.coupons))
	for _, coupon := range r.store.coupons {
		if filter.ActiveOnly && !coupon.Active {
			continue
		}
		out = append(out, coupon.Clone())
	}
	slices.SortFunc(out, func(a, b domain.Coupon) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	defer r.store.lock()()
	coupon, ok := r.store.coupons[code]
	if !ok {
		return domain.Coupon{}, notFound("coupons.increment_usage", code)
	}
	if coupon.Exhausted() {
		return domain.Coupon{}, repositories.NewCouponUsageError("coupons.increment_usage", repositories.CouponUsageLimitReached, "coupon usage limit reached")
	}
	coupon.UsedCount++
	coupon.UpdatedAt = at
	r.store.coupons[code] = coupon
	return coupon.Clone(), nil
}

func (r *CouponRepository) ReleaseUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	defer r.store.lock()()
	coupon, ok := r.store.coupons[code]
	if !ok {
		return domain.Coupon{}, notFound("coupons.release_usage", code)
	}
	if coupon.UsedCount <= 0 {
		return domain.Coupon{}, repositories.NewCouponUsageError("coupons.release_usage", repositories.CouponUsageNotRedeemed, "coupon has no recorded usage")
	}
	coupon.UsedCount--
	coupon.UpdatedAt = at
	r.store.coupons[code] = coupon
	return coupon.Clone(), nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	defer r.store.lock()()
	if _, ok := r.store.orders[order.ID]; ok {
		return conflict("orders.insert", "order "+order.ID+" already exists")
	}
	r.store.orders[order.ID] = order.Clone()
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	defer r.store.lock()()
	order, ok := r.store.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return order.Clone(), nil
}

func (r *OrderRepository) UpdateIf(ctx context.Context, order domain.Order, expect repositories.OrderExpectation) error {
	defer r.store.lock()()
	current, ok := r.store.orders[order.ID]
	if !ok {
		return notFound("orders.update", order.ID)
	}
	if !expect.Matches(current) {
		return conflict("orders.update", "order "+order.ID+" was modified concurrently")
	}
	r.store.orders[order.ID] = order.Clone()
	return nil
}
