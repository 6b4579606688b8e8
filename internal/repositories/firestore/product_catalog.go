package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// ProductCatalog reads the products collection keyed by product id.
type ProductCatalog struct {
	provider *pfirestore.Provider
}

var _ repositories.ProductCatalog = (*ProductCatalog)(nil)

// NewProductCatalog constructs a Firestore-backed product catalog.
func NewProductCatalog(provider *pfirestore.Provider) (*ProductCatalog, error) {
	if provider == nil {
		return nil, errors.New("product catalog requires firestore provider")
	}
	return &ProductCatalog{provider: provider}, nil
}

func (c *ProductCatalog) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	coll := client.Collection(productsCollection)
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, coll.Doc(id))
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.get_all", err)
	}
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("products.decode", err)
		}
		out[snap.Ref.ID] = doc.decode(snap.Ref.ID)
	}
	return out, nil
}
