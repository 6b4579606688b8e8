package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/services"
)

type stubOrderService struct {
	quoteFn         func(context.Context, services.QuoteCommand) (services.PriceBreakdown, error)
	createFn        func(context.Context, services.CreateOrderCommand) (domain.Order, error)
	getFn           func(context.Context, string) (domain.Order, error)
	updateStatusFn  func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error)
	cancelFn        func(context.Context, services.CancelOrderCommand) (services.CancelOrderResult, error)
	paymentStatusFn func(context.Context, services.UpdatePaymentStatusCommand) (domain.Order, error)
	refundFn        func(context.Context, services.InitiateRefundCommand) (domain.Order, error)
	refundStatusFn  func(context.Context, services.UpdateRefundStatusCommand) (domain.Order, error)
}

var errNotStubbed = errors.New("not implemented")

func (s *stubOrderService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.PriceBreakdown, error) {
	if s.quoteFn != nil {
		return s.quoteFn(ctx, cmd)
	}
	return services.PriceBreakdown{}, errNotStubbed
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Order{}, errNotStubbed
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return domain.Order{}, errNotStubbed
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.CancelOrderResult{}, errNotStubbed
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (domain.Order, error) {
	if s.paymentStatusFn != nil {
		return s.paymentStatusFn(ctx, cmd)
	}
	return domain.Order{}, errNotStubbed
}

func (s *stubOrderService) InitiateRefund(ctx context.Context, cmd services.InitiateRefundCommand) (domain.Order, error) {
	if s.refundFn != nil {
		return s.refundFn(ctx, cmd)
	}
	return domain.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateRefundStatus(ctx context.Context, cmd services.UpdateRefundStatusCommand) (domain.Order, error) {
	if s.refundStatusFn != nil {
		return s.refundStatusFn(ctx, cmd)
	}
	return domain.Order{}, errNotStubbed
}

type stubCouponService struct {
	validateFn func(context.Context, services.ValidateCouponCommand) (services.CouponValidation, error)
	confirmFn  func(context.Context, services.ConfirmCouponUsageCommand) (services.CouponRedemption, error)
	listFn     func(context.Context) ([]domain.Coupon, error)
	createFn   func(context.Context, services.UpsertCouponCommand) (domain.Coupon, error)
	updateFn   func(context.Context, services.UpsertCouponCommand) (domain.Coupon, error)
	deleteFn   func(context.Context, string) error
}

func (s *stubCouponService) Validate(ctx context.Context, cmd services.ValidateCouponCommand) (services.CouponValidation, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, cmd)
	}
	return services.CouponValidation{}, errNotStubbed
}

func (s *stubCouponService) ConfirmUsage(ctx context.Context, cmd services.ConfirmCouponUsageCommand) (services.CouponRedemption, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, cmd)
	}
	return services.CouponRedemption{}, errNotStubbed
}

func (s *stubCouponService) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubCouponService) CreateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Coupon{}, errNotStubbed
}

func (s *stubCouponService) UpdateCoupon(ctx context.Context, cmd services.UpsertCouponCommand) (domain.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Coupon{}, errNotStubbed
}

func (s *stubCouponService) DeleteCoupon(ctx context.Context, code string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, code)
	}
	return errNotStubbed
}

type stubDiscountService struct {
	activeFn func(context.Context) ([]domain.Discount, error)
	listFn   func(context.Context) ([]domain.Discount, error)
	createFn func(context.Context, services.UpsertDiscountCommand) (domain.Discount, error)
	updateFn func(context.Context, services.UpsertDiscountCommand) (domain.Discount, error)
	deleteFn func(context.Context, string) error
}

func (s *stubDiscountService) ListActive(ctx context.Context) ([]domain.Discount, error) {
	if s.activeFn != nil {
		return s.activeFn(ctx)
	}
	return nil, nil
}

func (s *stubDiscountService) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubDiscountService) CreateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return domain.Discount{}, errNotStubbed
}

func (s *stubDiscountService) UpdateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (domain.Discount, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return domain.Discount{}, errNotStubbed
}

func (s *stubDiscountService) DeleteDiscount(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return errNotStubbed
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s stubSystemService) HealthReport(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

type fixture struct {
	orders    *stubOrderService
	coupons   *stubCouponService
	discounts *stubDiscountService
	system    stubSystemService
}

func newFixture() *fixture {
	return &fixture{orders: &stubOrderService{}, coupons: &stubCouponService{}, discounts: &stubDiscountService{}}
}

// router assembles every group without Firebase or OIDC; identity, when non-nil, is placed on
// the request context the way the Firebase middleware would.
func (f *fixture) router(identity *auth.Identity) chi.Router {
	discounts := NewDiscountHandlers(f.discounts)
	coupons := NewCouponHandlers(nil, f.coupons)
	return NewRouter(
		WithMiddlewares(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if identity != nil {
					r = r.WithContext(auth.WithIdentity(r.Context(), identity))
				}
				next.ServeHTTP(w, r)
			})
		}),
		WithHealthHandlers(NewHealthHandlers(f.system)),
		WithDiscountRoutes(discounts.Routes),
		WithCouponRoutes(coupons.Routes),
		WithCartRoutes(NewCartHandlers(f.orders).Routes),
		WithOrderRoutes(NewOrderHandlers(nil, f.orders).Routes),
		WithAdminRoutes(AdminRoutes(discounts, coupons)),
		WithInternalRoutes(NewInternalOrderHandlers(f.orders).Routes),
	)
}

func customer() *auth.Identity {
	return &auth.Identity{UID: "cust_1", Roles: []string{auth.RoleUser}}
}

func staffMember() *auth.Identity {
	return &auth.Identity{UID: "ops_1", Roles: []string{auth.RoleStaff}}
}

func admin() *auth.Identity {
	return &auth.Identity{UID: "adm_1", Roles: []string{auth.RoleAdmin}}
}

func serve(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) map[string]any {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
	if rr.Body.Len() == 0 {
		return nil
	}
	return decodeBody(t, rr)
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:            "ord_1",
		CustomerID:    "cust_1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Refund:        domain.RefundState{Status: domain.RefundStatusNone},
		Items: []domain.OrderItem{{
			ProductID: "ring-1", Name: "Ring", Category: "rings", UnitPrice: 1000, Quantity: 2,
			ProductDiscountPerUnit: 100, FinalUnitPrice: 900,
		}},
		Subtotal:             2000,
		ProductDiscountTotal: 200,
		FinalAmount:          1800,
	}
}

func newJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func record(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
