package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/repositories"
)

var (
	// ErrCouponInvalidInput signals malformed coupon input.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates no coupon exists for the code.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponRejected wraps RuleViolations raised when a coupon cannot be used.
	ErrCouponRejected = errors.New("coupon: rejected")
	// ErrCouponConflict indicates a duplicate code or a concurrent modification.
	ErrCouponConflict = errors.New("coupon: conflict")
	// ErrCouponUnavailable indicates the coupon store failed.
	ErrCouponUnavailable = errors.New("coupon: repository unavailable")
)

var couponRepoErrors = repositoryErrorClass{
	notFound:    ErrCouponNotFound,
	conflict:    ErrCouponConflict,
	unavailable: ErrCouponUnavailable,
}

const maxCouponDescriptionRunes = 280

// CouponServiceDeps bundles collaborators required to construct the coupon service.
type CouponServiceDeps struct {
	Coupons   repositories.CouponRepository
	Discounts repositories.DiscountRepository
	// Orders enables order-bound confirmations. Optional.
	Orders repositories.OrderRepository
	// Catalog prices Items in Validate. Item-based validation fails without it.
	Catalog repositories.ProductCatalog
	Clock   func() time.Time
	Events  OrderEventPublisher
	Meter   metric.Meter
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type couponService struct {
	coupons     repositories.CouponRepository
	discounts   repositories.DiscountRepository
	orders      repositories.OrderRepository
	catalog     repositories.ProductCatalog
	validator   CouponValidator
	calculator  *PriceCalculator
	clock       func() time.Time
	events      OrderEventPublisher
	redemptions metric.Int64Counter
	logger      func(context.Context, string, map[string]any)
}

// NewCouponService wires the coupon service.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("coupon service: discount repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("github.com/hanko-field/storefront/internal/services")
	}
	redemptions, err := meter.Int64Counter("coupon.redemptions",
		metric.WithDescription("Coupon redemptions confirmed, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("coupon service: create redemption counter: %w", err)
	}
	return &couponService{
		coupons:     deps.Coupons,
		discounts:   deps.Discounts,
		orders:      deps.Orders,
		catalog:     deps.Catalog,
		calculator:  NewPriceCalculator(logger),
		clock:       func() time.Time { return clock().UTC() },
		events:      deps.Events,
		redemptions: redemptions,
		logger:      logger,
	}, nil
}

func (s *couponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidation, error) {
	code := domain.NormalizeCouponCode(cmd.Code)
	if code == "" {
		return CouponValidation{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	if cmd.CartTotal < 0 {
		return CouponValidation{}, fmt.Errorf("%w: cart total cannot be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.find(ctx, code)
	if err != nil {
		return CouponValidation{}, err
	}

	now := s.clock()
	cart := CouponCart{Total: cmd.CartTotal, Categories: cmd.Categories}
	if len(cmd.Items) > 0 {
		if s.catalog == nil {
			return CouponValidation{}, fmt.Errorf("%w: item pricing is not configured", ErrCouponInvalidInput)
		}
		lines, err := resolveCartLines(ctx, s.catalog, cmd.Items)
		if err != nil {
			if errors.Is(err, ErrPricingInvalidInput) {
				return CouponValidation{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
			}
			return CouponValidation{}, couponRepoErrors.mapError(err)
		}
		discounts, err := s.discounts.List(ctx, repositories.DiscountListFilter{ActiveOnly: true})
		if err != nil {
			return CouponValidation{}, couponRepoErrors.mapError(err)
		}
		breakdown, err := s.calculator.Compute(ctx, lines, discounts, nil, now)
		if err != nil {
			return CouponValidation{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
		}
		cart.Total = breakdown.SubtotalAfterProductDiscounts
		cart.Categories = cart.Categories[:0:0]
		for _, line := range breakdown.Lines {
			if line.Category != "" && !slices.Contains(cart.Categories, line.Category) {
				cart.Categories = append(cart.Categories, line.Category)
			}
		}
	}

	result := s.validator.Validate(code, cart, coupon, now)
	validation := CouponValidation{
		Code:        result.Code,
		Valid:       result.Accepted,
		Reason:      result.Rejection,
		CartTotal:   cart.Total,
		FinalAmount: cart.Total,
		Coupon:      result.Coupon,
	}
	if result.Accepted {
		validation.DiscountAmount = result.DiscountAmount
		validation.FinalAmount = cart.Total - result.DiscountAmount
	} else {
		validation.Message = result.Rejection.Message()
	}
	return validation, nil
}

func (s *couponService) ConfirmUsage(ctx context.Context, cmd ConfirmCouponUsageCommand) (CouponRedemption, error) {
	code := domain.NormalizeCouponCode(cmd.Code)
	if code == "" {
		return CouponRedemption{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}

	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID != "" && strings.TrimSpace(cmd.OrderID) == "" {
		return CouponRedemption{}, fmt.Errorf("%w: order_id is required", ErrCouponInvalidInput)
	}

	var (
		order    domain.Order
		hasOrder bool
	)
	if orderID := strings.TrimSpace(cmd.OrderID); orderID != "" {
		if s.orders == nil {
			return CouponRedemption{}, fmt.Errorf("%w: order bound confirmation is not configured", ErrCouponInvalidInput)
		}
		loaded, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return CouponRedemption{}, orderRepoErrors.mapError(err)
		}
		if customerID != "" && loaded.CustomerID != customerID {
			return CouponRedemption{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if loaded.CouponCode != code {
			return CouponRedemption{}, fmt.Errorf("%w: order %s was not placed with coupon %s", ErrCouponInvalidInput, orderID, code)
		}
		if loaded.CouponRedeemed {
			return s.alreadyRedeemed(ctx, code)
		}
		order, hasOrder = loaded, true
	}

	coupon, err := s.find(ctx, code)
	if err != nil {
		return CouponRedemption{}, err
	}
	if coupon == nil {
		return CouponRedemption{}, fmt.Errorf("%w: %s", ErrCouponNotFound, code)
	}
	now := s.clock()
	if reason := redemptionWindowRejection(*coupon, now); reason != "" {
		s.record(ctx, string(reason))
		return CouponRedemption{}, newRuleViolation(ErrCouponRejected, string(reason), "%s", reason.Message())
	}

	updated, err := s.coupons.IncrementUsage(ctx, code, now)
	if err != nil {
		if repositories.IsCouponUsageLimitReached(err) {
			s.record(ctx, string(CouponRejectionUsageLimitReached))
			return CouponRedemption{}, newRuleViolation(ErrCouponRejected, string(CouponRejectionUsageLimitReached), "%s", CouponRejectionUsageLimitReached.Message())
		}
		return CouponRedemption{}, couponRepoErrors.mapError(err)
	}

	if hasOrder {
		next := order.Clone()
		next.CouponRedeemed = true
		next.UpdatedAt = now
		if err := s.orders.UpdateIf(ctx, next, repositories.ExpectationFor(order)); err != nil {
			if _, releaseErr := s.coupons.ReleaseUsage(ctx, code, s.clock()); releaseErr != nil {
				s.logger(ctx, "coupon.usage.release.failed", map[string]any{
					"couponCode": code,
					"orderId":    order.ID,
					"error":      releaseErr.Error(),
				})
			}
			mapped := orderRepoErrors.mapError(err)
			if errors.Is(mapped, ErrOrderConflict) {
				// A concurrent confirmation may have bound this order first.
				if current, findErr := s.orders.FindByID(ctx, order.ID); findErr == nil && current.CouponRedeemed {
					return s.alreadyRedeemed(ctx, code)
				}
			}
			return CouponRedemption{}, mapped
		}
	}

	s.record(ctx, "redeemed")
	if s.events != nil {
		event := OrderEvent{
			Type:       CouponEventRedeemed,
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			ActorID:    cmd.ActorID,
			OccurredAt: now,
			Metadata:   map[string]any{"couponCode": code, "usedCount": updated.UsedCount},
		}
		if err := s.events.PublishOrderEvent(ctx, event); err != nil {
			s.logger(ctx, "order.event.publish.failed", map[string]any{
				"type":    event.Type,
				"orderId": event.OrderID,
				"error":   err.Error(),
			})
		}
	}
	return CouponRedemption{Coupon: updated}, nil
}

func (s *couponService) alreadyRedeemed(ctx context.Context, code string) (CouponRedemption, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return CouponRedemption{}, couponRepoErrors.mapError(err)
	}
	s.record(ctx, "already_redeemed")
	return CouponRedemption{Coupon: coupon, AlreadyRedeemed: true}, nil
}

func (s *couponService) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	coupons, err := s.coupons.List(ctx, repositories.CouponListFilter{})
	if err != nil {
		return nil, couponRepoErrors.mapError(err)
	}
	return coupons, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error) {
	now := s.clock()
	coupon := couponFromCommand(cmd)
	coupon.CreatedAt = now
	coupon.UpdatedAt = now
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
	}
	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return domain.Coupon{}, couponRepoErrors.mapError(err)
	}
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (domain.Coupon, error) {
	code := domain.NormalizeCouponCode(cmd.Code)
	if code == "" {
		return domain.Coupon{}, fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	existing, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return domain.Coupon{}, couponRepoErrors.mapError(err)
	}
	coupon := couponFromCommand(cmd)
	coupon.UsedCount = existing.UsedCount
	coupon.CreatedAt = existing.CreatedAt
	coupon.UpdatedAt = s.clock()
	if err := coupon.Validate(); err != nil {
		return domain.Coupon{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
	}
	// The store keeps its own UsedCount and re-checks the limit against it.
	stored, err := s.coupons.Update(ctx, coupon)
	if err != nil {
		if repositories.IsCouponUsageLimitBelowUsed(err) {
			return domain.Coupon{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
		}
		return domain.Coupon{}, couponRepoErrors.mapError(err)
	}
	return stored, nil
}

func (s *couponService) DeleteCoupon(ctx context.Context, code string) error {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return fmt.Errorf("%w: coupon code is required", ErrCouponInvalidInput)
	}
	if err := s.coupons.Delete(ctx, code); err != nil {
		return couponRepoErrors.mapError(err)
	}
	return nil
}

// find returns nil without error when the code is unknown.
func (s *couponService) find(ctx context.Context, code string) (*domain.Coupon, error) {
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, couponRepoErrors.mapError(err)
	}
	return &coupon, nil
}

func (s *couponService) record(ctx context.Context, outcome string) {
	s.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// redemptionWindowRejection re-checks the cart independent rules at confirmation time. The
// usage limit is enforced atomically by the repository.
func redemptionWindowRejection(coupon domain.Coupon, now time.Time) CouponRejection {
	switch {
	case !coupon.Active:
		return CouponRejectionInactive
	case coupon.StartsAt != nil && now.Before(*coupon.StartsAt):
		return CouponRejectionNotYetStarted
	case coupon.EndsAt != nil && now.After(*coupon.EndsAt):
		return CouponRejectionExpired
	}
	return ""
}

func couponFromCommand(cmd UpsertCouponCommand) domain.Coupon {
	categories := make([]string, 0, len(cmd.ApplicableCategories))
	for _, category := range cmd.ApplicableCategories {
		category = strings.TrimSpace(category)
		if category != "" && !slices.Contains(categories, category) {
			categories = append(categories, category)
		}
	}
	if len(categories) == 0 {
		categories = nil
	}
	return domain.Coupon{
		Code:                 domain.NormalizeCouponCode(cmd.Code),
		Adjustment:           cmd.Adjustment,
		MinPurchase:          cmd.MinPurchase,
		StartsAt:             cmd.StartsAt,
		EndsAt:               cmd.EndsAt,
		Active:               cmd.Active,
		UsageLimit:           cmd.UsageLimit,
		ApplicableCategories: categories,
		Description:          textutil.SanitizePlain(cmd.Description, maxCouponDescriptionRunes),
	}
}
