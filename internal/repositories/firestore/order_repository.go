package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// OrderRepository persists orders. UpdateIf re-reads the stored order inside a transaction and
// only writes when the lifecycle fields still match the caller's expectation.
type OrderRepository struct {
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) doc(ctx context.Context, orderID string) (*firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(orderID), nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := r.doc(ctx, order.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ref, err := r.doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.decode", err)
	}
	return decodeOrder(snap.Ref.ID, doc), nil
}

func (r *OrderRepository) UpdateIf(ctx context.Context, order domain.Order, expect repositories.OrderExpectation) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.doc(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return pfirestore.WrapError("orders.decode", err)
		}
		if !expect.Matches(decodeOrder(snap.Ref.ID, doc)) {
			return pfirestore.Conflict("orders.update", "order %s was modified concurrently", order.ID)
		}
		return tx.Set(ref, encodeOrder(order))
	})
}
