package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/storefront/internal/domain"
)

func TestDiscountDocumentKeepsBasisPoints(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))
	discount := domain.Discount{
		ID:         "dsc_1",
		Name:       "Rings",
		Scope:      domain.CategoryScope{Category: "rings"},
		Adjustment: domain.Percentage{BasisPoints: 1250},
		Active:     true,
		CreatedAt:  created,
		UpdatedAt:  created,
	}

	doc := encodeDiscount(discount)
	assert.Equal(t, "category", doc.ScopeKind)
	assert.Equal(t, "rings", doc.ScopeTarget)
	assert.Equal(t, adjustmentDocument{Kind: "percentage", Value: 1250}, doc.Adjustment)

	decoded, err := decodeDiscount("dsc_1", doc)
	require.NoError(t, err)
	assert.Equal(t, domain.Percentage{BasisPoints: 1250}, decoded.Adjustment)
	assert.Equal(t, time.UTC, decoded.CreatedAt.Location())
	assert.True(t, decoded.CreatedAt.Equal(created))
}

func TestDecodeRejectsCorruptDocuments(t *testing.T) {
	_, err := decodeDiscount("dsc_bad", discountDocument{ScopeKind: "warehouse", Adjustment: adjustmentDocument{Kind: "flat"}})
	assert.ErrorContains(t, err, "dsc_bad")

	_, err = decodeCoupon("BAD", couponDocument{Adjustment: adjustmentDocument{Kind: "bogo"}})
	assert.ErrorContains(t, err, `unknown adjustment kind "bogo"`)
}

func TestOrderDocumentDefaultsRefundStatus(t *testing.T) {
	order := decodeOrder("ord_1", orderDocument{
		Status:        "pending",
		PaymentStatus: "pending",
		Items:         []orderItemDocument{{ProductID: "p1", UnitPrice: 1000, Quantity: 2, FinalUnitPrice: 900}},
	})
	assert.Equal(t, domain.RefundStatusNone, order.Refund.Status)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(1800), order.Items[0].LineTotal())
}
