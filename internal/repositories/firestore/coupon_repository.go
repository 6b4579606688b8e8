package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// CouponRepository persists coupons with the normalised code as document id. Usage counters
// are read and written inside one transaction so concurrent redemptions never overshoot the
// limit.
type CouponRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider}, nil
}

func (r *CouponRepository) doc(ctx context.Context, code string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(couponsCollection).Doc(code), nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	ref, err := r.doc(ctx, coupon.Code)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeCoupon(coupon)); err != nil {
		return pfirestore.WrapError("coupons.insert", err)
	}
	return nil
}

// Update reads the stored counter inside the transaction, so a redemption committed between
// the caller's read and this write is never overwritten.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	var updated domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.doc(ctx, coupon.Code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("coupons.update", err)
		}
		current, err := snapshotCoupon(snap)
		if err != nil {
			return err
		}
		if coupon.UsageLimit != nil && *coupon.UsageLimit < current.UsedCount {
			return repositories.NewCouponUsageError("coupons.update", repositories.CouponUsageLimitBelowUsed, "usage limit is below the current used count")
		}
		next := coupon.Clone()
		next.UsedCount = current.UsedCount
		next.CreatedAt = current.CreatedAt
		if err := tx.Set(ref, encodeCoupon(next)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		var usageErr *repositories.CouponUsageError
		if errors.As(err, &usageErr) {
			return domain.Coupon{}, usageErr
		}
		return domain.Coupon{}, pfirestore.WrapError("coupons.update", err)
	}
	return updated, nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	ref, err := r.doc(ctx, code)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("coupons.delete", err)
	}
	return nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	ref, err := r.doc(ctx, code)
	if err != nil {
		return domain.Coupon{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.get", err)
	}
	return snapshotCoupon(snap)
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) ([]domain.Coupon, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(couponsCollection).Query
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	iter := query.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Coupon
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, pfirestore.WrapError("coupons.list", err)
		}
		coupon, err := snapshotCoupon(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, coupon)
	}
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	return r.adjustUsage(ctx, "coupons.increment_usage", code, at, func(coupon *domain.Coupon) error {
		if coupon.Exhausted() {
			return repositories.NewCouponUsageError("coupons.increment_usage", repositories.CouponUsageLimitReached, "coupon usage limit reached")
		}
		coupon.UsedCount++
		return nil
	})
}

func (r *CouponRepository) ReleaseUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	return r.adjustUsage(ctx, "coupons.release_usage", code, at, func(coupon *domain.Coupon) error {
		if coupon.UsedCount <= 0 {
			return repositories.NewCouponUsageError("coupons.release_usage", repositories.CouponUsageNotRedeemed, "coupon has no recorded usage")
		}
		coupon.UsedCount--
		return nil
	})
}

func (r *CouponRepository) adjustUsage(ctx context.Context, op, code string, at time.Time, mutate func(*domain.Coupon) error) (domain.Coupon, error) {
	var updated domain.Coupon
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.doc(ctx, code)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError(op, err)
		}
		coupon, err := snapshotCoupon(snap)
		if err != nil {
			return err
		}
		if err := mutate(&coupon); err != nil {
			return err
		}
		coupon.UpdatedAt = at.UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "usedCount", Value: coupon.UsedCount},
			{Path: "updatedAt", Value: coupon.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = coupon
		return nil
	})
	if err != nil {
		var usageErr *repositories.CouponUsageError
		if errors.As(err, &usageErr) {
			return domain.Coupon{}, usageErr
		}
		return domain.Coupon{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

func snapshotCoupon(snap *firestore.DocumentSnapshot) (domain.Coupon, error) {
	var doc couponDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.decode", err)
	}
	return decodeCoupon(snap.Ref.ID, doc)
}
