package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

func TestValidateCouponRejectionIsStill200(t *testing.T) {
	f := newFixture()
	var got services.ValidateCouponCommand
	f.coupons.validateFn = func(_ context.Context, cmd services.ValidateCouponCommand) (services.CouponValidation, error) {
		got = cmd
		return services.CouponValidation{
			Code:      "ONCE",
			Valid:     false,
			Reason:    services.CouponRejectionUsageLimitReached,
			Message:   services.CouponRejectionUsageLimitReached.Message(),
			CartTotal: 5000,
		}, nil
	}
	rr := serve(t, f.router(nil), http.MethodPost, "/api/v1/coupons/validate", `{"code":"once","cart_total":5000,"cart_categories":["rings"]}`)
	body := expectStatus(t, rr, http.StatusOK)

	if got.Code != "once" || got.CartTotal != 5000 || len(got.Categories) != 1 {
		t.Fatalf("unexpected command %+v", got)
	}
	if body["valid"] != false || body["reason"] != "usage_limit_reached" {
		t.Fatalf("unexpected payload %v", body)
	}
	if _, ok := body["coupon"]; ok {
		t.Fatalf("rejected coupon must not be echoed")
	}
}

func TestConfirmUsageRequiresIdentity(t *testing.T) {
	rr := serve(t, newFixture().router(nil), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"X"}`)
	expectStatus(t, rr, http.StatusUnauthorized)
}

func TestConfirmUsage(t *testing.T) {
	f := newFixture()
	var got services.ConfirmCouponUsageCommand
	limit := int64(3)
	f.coupons.confirmFn = func(_ context.Context, cmd services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		got = cmd
		return services.CouponRedemption{Coupon: domain.Coupon{
			Code: "FLAT500", Adjustment: domain.Flat{Amount: 500}, Active: true, UsageLimit: &limit, UsedCount: 2,
		}}, nil
	}
	rr := serve(t, f.router(customer()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"flat500","order_id":"ord_1"}`)
	body := expectStatus(t, rr, http.StatusOK)

	if got.ActorID != "cust_1" || got.OrderID != "ord_1" || got.CustomerID != "cust_1" {
		t.Fatalf("unexpected command %+v", got)
	}
	coupon := body["coupon"].(map[string]any)
	if coupon["used_count"] != float64(2) || coupon["discount_type"] != "flat" || coupon["discount_value"] != float64(500) {
		t.Fatalf("unexpected coupon payload %v", coupon)
	}
}

func TestConfirmUsageExhaustedIs422(t *testing.T) {
	f := newFixture()
	f.coupons.confirmFn = func(context.Context, services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		return services.CouponRedemption{}, &services.RuleViolation{
			Code:    string(services.CouponRejectionUsageLimitReached),
			Message: services.CouponRejectionUsageLimitReached.Message(),
			Err:     services.ErrCouponRejected,
		}
	}
	body := expectStatus(t, serve(t, f.router(staffMember()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"ONCE"}`), http.StatusUnprocessableEntity)
	if body["reason"] != "usage_limit_reached" || body["error"] != "coupon_rejected" {
		t.Fatalf("unexpected payload %v", body)
	}
}

func TestConfirmUsageUnknownCouponIs404(t *testing.T) {
	f := newFixture()
	f.coupons.confirmFn = func(context.Context, services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		return services.CouponRedemption{}, fmt.Errorf("%w: NOPE", services.ErrCouponNotFound)
	}
	expectStatus(t, serve(t, f.router(staffMember()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"NOPE"}`), http.StatusNotFound)
}

func TestConfirmUsageCustomerNeedsOrder(t *testing.T) {
	f := newFixture()
	called := false
	f.coupons.confirmFn = func(context.Context, services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		called = true
		return services.CouponRedemption{}, nil
	}
	expectStatus(t, serve(t, f.router(customer()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"flat500"}`), http.StatusBadRequest)
	if called {
		t.Fatalf("confirmation without an order must not reach the service")
	}
}

func TestConfirmUsageForeignOrderIs404(t *testing.T) {
	f := newFixture()
	f.coupons.confirmFn = func(_ context.Context, cmd services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		if cmd.CustomerID != "cust_1" {
			t.Fatalf("expected caller scoping, got %+v", cmd)
		}
		return services.CouponRedemption{}, fmt.Errorf("%w: ord_9", services.ErrOrderNotFound)
	}
	expectStatus(t, serve(t, f.router(customer()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"flat500","order_id":"ord_9"}`), http.StatusNotFound)
}

func TestConfirmUsageStaffIsNotScoped(t *testing.T) {
	f := newFixture()
	var got services.ConfirmCouponUsageCommand
	f.coupons.confirmFn = func(_ context.Context, cmd services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
		got = cmd
		return services.CouponRedemption{Coupon: domain.Coupon{Code: "FLAT500", Adjustment: domain.Flat{Amount: 500}}}, nil
	}
	expectStatus(t, serve(t, f.router(staffMember()), http.MethodPost, "/api/v1/coupons/confirm-usage", `{"code":"flat500","order_id":"ord_9"}`), http.StatusOK)
	if got.CustomerID != "" || got.OrderID != "ord_9" {
		t.Fatalf("unexpected staff command %+v", got)
	}
}

func TestAdminCouponRoutes(t *testing.T) {
	f := newFixture()
	var created services.UpsertCouponCommand
	f.coupons.createFn = func(_ context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
		created = cmd
		return domain.Coupon{Code: "SPRING10", Adjustment: domain.Percentage{BasisPoints: 1000}, Active: true}, nil
	}
	var updated services.UpsertCouponCommand
	f.coupons.updateFn = func(_ context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
		updated = cmd
		return domain.Coupon{Code: cmd.Code, Adjustment: cmd.Adjustment}, nil
	}
	deleted := ""
	f.coupons.deleteFn = func(_ context.Context, code string) error {
		deleted = code
		return nil
	}

	request := `{"code":"spring10","discount_type":"percentage","discount_value":10,"usage_limit":100,"applicable_categories":["rings"],"starts_at":"2025-03-01T00:00:00Z"}`
	expectStatus(t, serve(t, f.router(customer()), http.MethodPost, "/api/v1/admin/coupons", request), http.StatusForbidden)
	expectStatus(t, serve(t, f.router(staffMember()), http.MethodPost, "/api/v1/admin/coupons", request), http.StatusForbidden)

	body := expectStatus(t, serve(t, f.router(admin()), http.MethodPost, "/api/v1/admin/coupons", request), http.StatusCreated)
	if pct, ok := created.Adjustment.(domain.Percentage); !ok || pct.BasisPoints != 1000 {
		t.Fatalf("unexpected adjustment %#v", created.Adjustment)
	}
	if created.UsageLimit == nil || *created.UsageLimit != 100 || created.StartsAt == nil || !created.Active {
		t.Fatalf("unexpected command %+v", created)
	}
	if body["discount_value"] != float64(10) {
		t.Fatalf("unexpected payload %v", body)
	}

	expectStatus(t, serve(t, f.router(admin()), http.MethodPut, "/api/v1/admin/coupons/spring10", `{"discount_type":"flat","discount_value":300}`), http.StatusOK)
	if updated.Code != "SPRING10" {
		t.Fatalf("expected normalised path code, got %q", updated.Code)
	}
	expectStatus(t, serve(t, f.router(admin()), http.MethodPut, "/api/v1/admin/coupons/spring10", `{"code":"OTHER","discount_type":"flat","discount_value":300}`), http.StatusBadRequest)

	rr := serve(t, f.router(admin()), http.MethodDelete, "/api/v1/admin/coupons/SPRING10", nil)
	if rr.Code != http.StatusNoContent || deleted != "SPRING10" {
		t.Fatalf("expected 204 delete of SPRING10, got %d %q", rr.Code, deleted)
	}
}

func TestAdminCouponInvalidAdjustment(t *testing.T) {
	f := newFixture()
	expectStatus(t, serve(t, f.router(admin()), http.MethodPost, "/api/v1/admin/coupons", `{"code":"BAD","discount_type":"bogo","discount_value":1}`), http.StatusBadRequest)
}
