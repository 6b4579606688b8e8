package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// DiscountRepository persists discounts in the discounts collection keyed by discount id.
type DiscountRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{provider: provider}, nil
}

func (r *DiscountRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(discountsCollection), nil
}

func (r *DiscountRepository) Insert(ctx context.Context, discount domain.Discount) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(discount.ID).Create(ctx, encodeDiscount(discount)); err != nil {
		return pfirestore.WrapError("discounts.insert", err)
	}
	return nil
}

func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		coll, err := r.collection(ctx)
		if err != nil {
			return err
		}
		ref := coll.Doc(discount.ID)
		if _, err := tx.Get(ref); err != nil {
			return pfirestore.WrapError("discounts.update", err)
		}
		return tx.Set(ref, encodeDiscount(discount))
	})
}

func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.Doc(discountID).Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("discounts.delete", err)
	}
	return nil
}

func (r *DiscountRepository) FindByID(ctx context.Context, discountID string) (domain.Discount, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Discount{}, err
	}
	snap, err := coll.Doc(discountID).Get(ctx)
	if err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.get", err)
	}
	var doc discountDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.decode", err)
	}
	return decodeDiscount(snap.Ref.ID, doc)
}

func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) ([]domain.Discount, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if filter.ActiveOnly {
		query = query.Where("active", "==", true)
	}
	iter := query.OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []domain.Discount
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, pfirestore.WrapError("discounts.list", err)
		}
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("discounts.decode", err)
		}
		discount, err := decodeDiscount(snap.Ref.ID, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, discount)
	}
}
