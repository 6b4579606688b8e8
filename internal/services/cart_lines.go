package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/hanko-field/storefront/internal/repositories"
)

// resolveCartLines prices submitted lines from the catalog. Only ProductID and Quantity are
// taken from the caller; an unknown product fails with ErrPricingInvalidInput.
func resolveCartLines(ctx context.Context, catalog repositories.ProductCatalog, items []CartLine) ([]CartLine, error) {
	ids := make([]string, 0, len(items))
	for idx, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return nil, fmt.Errorf("%w: line %d product id is required", ErrPricingInvalidInput, idx)
		}
		ids = append(ids, id)
	}
	products, err := catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	lines := make([]CartLine, 0, len(items))
	for idx, item := range items {
		product, ok := products[ids[idx]]
		if !ok {
			return nil, fmt.Errorf("%w: line %d product %s is not in the catalog", ErrPricingInvalidInput, idx, ids[idx])
		}
		lines = append(lines, CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			Category:  product.Category,
			Image:     product.Image,
			UnitPrice: product.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return lines, nil
}
