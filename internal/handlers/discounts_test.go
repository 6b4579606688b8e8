package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func TestListActiveDiscounts(t *testing.T) {
	f := newFixture()
	ends := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	f.discounts.activeFn = func(context.Context) ([]domain.Discount, error) {
		return []domain.Discount{{
			ID:         "dsc_1",
			Name:       "Ring week",
			Scope:      domain.CategoryScope{Category: "rings"},
			Adjustment: domain.Percentage{BasisPoints: 1000},
			EndsAt:     &ends,
			Active:     true,
		}}, nil
	}
	body := expectStatus(t, serve(t, f.router(nil), http.MethodGet, "/api/v1/discounts/active", nil), http.StatusOK)
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one discount, got %v", items)
	}
	item := items[0].(map[string]any)
	if item["scope_type"] != "category" || item["scope_target"] != "rings" || item["discount_value"] != float64(10) {
		t.Fatalf("unexpected discount payload %v", item)
	}
	if item["ends_at"] != "2025-12-31T00:00:00Z" {
		t.Fatalf("unexpected ends_at %v", item["ends_at"])
	}
}

func TestListActiveDiscountsUnavailable(t *testing.T) {
	f := newFixture()
	f.discounts.activeFn = func(context.Context) ([]domain.Discount, error) {
		return nil, fmt.Errorf("%w: firestore down", services.ErrDiscountUnavailable)
	}
	expectStatus(t, serve(t, f.router(nil), http.MethodGet, "/api/v1/discounts/active", nil), http.StatusServiceUnavailable)
}

func TestAdminDiscountCRUD(t *testing.T) {
	f := newFixture()
	var created services.UpsertDiscountCommand
	f.discounts.createFn = func(_ context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
		created = cmd
		return domain.Discount{ID: "dsc_1", Name: cmd.Name, Scope: cmd.Scope, Adjustment: cmd.Adjustment, Active: cmd.Active}, nil
	}
	var updated services.UpsertDiscountCommand
	f.discounts.updateFn = func(_ context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
		updated = cmd
		return domain.Discount{ID: cmd.ID, Scope: cmd.Scope, Adjustment: cmd.Adjustment}, nil
	}
	f.discounts.deleteFn = func(_ context.Context, id string) error {
		if id != "dsc_1" {
			return fmt.Errorf("%w: %s", services.ErrDiscountNotFound, id)
		}
		return nil
	}
	router := f.router(admin())

	body := expectStatus(t, serve(t, router, http.MethodPost, "/api/v1/admin/discounts",
		`{"name":"Ring week","scope_type":"product","scope_target":"ring-1","discount_type":"flat","discount_value":150,"active":false}`), http.StatusCreated)
	if scope, ok := created.Scope.(domain.ProductScope); !ok || scope.ProductID != "ring-1" {
		t.Fatalf("unexpected scope %#v", created.Scope)
	}
	if created.Active {
		t.Fatalf("explicit active=false must be kept")
	}
	if body["id"] != "dsc_1" {
		t.Fatalf("unexpected payload %v", body)
	}

	expectStatus(t, serve(t, router, http.MethodPut, "/api/v1/admin/discounts/dsc_1", `{"name":"Sitewide","scope_type":"global","discount_type":"percentage","discount_value":5}`), http.StatusOK)
	if updated.ID != "dsc_1" {
		t.Fatalf("expected id from path, got %q", updated.ID)
	}

	expectStatus(t, serve(t, router, http.MethodPost, "/api/v1/admin/discounts", `{"name":"x","scope_type":"category","discount_type":"flat","discount_value":1}`), http.StatusBadRequest)
	expectStatus(t, serve(t, router, http.MethodPost, "/api/v1/admin/discounts", `{"name":"x","scope_type":"global","discount_type":"flat","discount_value":1,"starts_at":"tomorrow"}`), http.StatusBadRequest)

	if rr := serve(t, router, http.MethodDelete, "/api/v1/admin/discounts/dsc_1", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	expectStatus(t, serve(t, router, http.MethodDelete, "/api/v1/admin/discounts/dsc_2", nil), http.StatusNotFound)
}
