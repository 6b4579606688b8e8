package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

const orderIDPrefix = "ord_"

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates a lifecycle rule rejected the change.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderConflict indicates the order changed between read and write.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates storage or a payment provider failed.
	ErrOrderUnavailable = errors.New("order: dependency unavailable")
)

var orderRepoErrors = repositoryErrorClass{
	notFound:    ErrOrderNotFound,
	conflict:    ErrOrderConflict,
	unavailable: ErrOrderUnavailable,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Discounts repositories.DiscountRepository
	Coupons   repositories.CouponRepository
	// Catalog supplies unit prices and categories. Client-submitted prices are ignored.
	Catalog repositories.ProductCatalog
	// Refunds executes refunds for orders that carry a payment intent. Optional.
	Refunds payments.RefundGateway
	Policy  AdminTransitionPolicy
	// RedeemCouponOnCreate consumes one coupon use atomically when the order is placed.
	RedeemCouponOnCreate bool
	Clock                func() time.Time
	IDGenerator          func() string
	RefundIDGenerator    func() string
	Events               OrderEventPublisher
	Logger               func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	discounts      repositories.DiscountRepository
	coupons        repositories.CouponRepository
	catalog        repositories.ProductCatalog
	refunds        payments.RefundGateway
	calculator     *PriceCalculator
	machine        OrderStateMachine
	tracker        RefundTracker
	redeemOnCreate bool
	clock          func() time.Time
	newID          func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("order service: discount repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("order service: coupon repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order service: product catalog is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		discounts:      deps.Discounts,
		coupons:        deps.Coupons,
		catalog:        deps.Catalog,
		refunds:        deps.Refunds,
		calculator:     NewPriceCalculator(logger),
		machine:        NewOrderStateMachine(deps.Policy),
		tracker:        NewRefundTracker(deps.RefundIDGenerator),
		redeemOnCreate: deps.RedeemCouponOnCreate,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Quote(ctx context.Context, cmd QuoteCommand) (PriceBreakdown, error) {
	breakdown, _, err := s.price(ctx, cmd.Items, cmd.CouponCode)
	return breakdown, err
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}

	breakdown, now, err := s.price(ctx, cmd.Items, cmd.CouponCode)
	if err != nil {
		return domain.Order{}, err
	}
	if breakdown.CouponRejection != "" {
		return domain.Order{}, newRuleViolation(ErrCouponRejected, string(breakdown.CouponRejection), "%s", breakdown.CouponRejection.Message())
	}

	order := domain.Order{
		ID:                   ensureOrderPrefix(s.newID()),
		CustomerID:           customerID,
		Items:                orderItemsFrom(breakdown.Lines),
		Subtotal:             breakdown.Subtotal,
		ProductDiscountTotal: breakdown.ProductDiscountTotal,
		CouponCode:           breakdown.CouponCode,
		CouponDiscountTotal:  breakdown.CouponDiscountTotal,
		FinalAmount:          breakdown.FinalAmount,
		PaymentStatus:        domain.PaymentStatusPending,
		Status:               domain.OrderStatusPending,
		Refund:               domain.RefundState{Status: domain.RefundStatusNone},
		Payment: domain.PaymentReference{
			Provider: strings.TrimSpace(cmd.Payment.Provider),
			IntentID: strings.TrimSpace(cmd.Payment.IntentID),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	order.AppendTimeline(timelineOrderCreated, now, fmt.Sprintf("order placed for %d", order.FinalAmount), customerID)

	redeemed := false
	if s.redeemOnCreate && breakdown.CouponApplied() {
		if _, err := s.coupons.IncrementUsage(ctx, breakdown.CouponCode, now); err != nil {
			if repositories.IsCouponUsageLimitReached(err) {
				return domain.Order{}, newRuleViolation(ErrCouponRejected, string(CouponRejectionUsageLimitReached), "%s", CouponRejectionUsageLimitReached.Message())
			}
			return domain.Order{}, couponRepoErrors.mapError(err)
		}
		redeemed = true
		order.CouponRedeemed = true
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if redeemed {
			s.releaseCoupon(ctx, order.CouponCode, order.ID)
		}
		return domain.Order{}, orderRepoErrors.mapError(err)
	}

	s.publish(ctx, OrderEvent{
		Type:          OrderEventCreated,
		OrderID:       order.ID,
		CustomerID:    order.CustomerID,
		CurrentStatus: string(order.Status),
		ActorID:       customerID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"finalAmount": order.FinalAmount,
			"couponCode":  order.CouponCode,
		},
	})
	if redeemed {
		s.publish(ctx, OrderEvent{
			Type:       CouponEventRedeemed,
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			ActorID:    customerID,
			OccurredAt: now,
			Metadata:   map[string]any{"couponCode": order.CouponCode},
		})
	}
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, orderRepoErrors.mapError(err)
	}
	return order, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error) {
	if _, ok := domain.ParseOrderStatus(string(cmd.Status)); !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", ErrOrderInvalidInput, cmd.Status)
	}
	current, err := s.load(ctx, cmd.OrderID, cmd.ExpectedStatus)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	next, changed, err := s.machine.Transition(current, cmd.Status, cmd.ActorID, now)
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		return current, nil
	}
	if err := s.save(ctx, current, next); err != nil {
		return domain.Order{}, err
	}
	s.publishStatusChange(ctx, current, next, cmd.ActorID)
	return next, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error) {
	current, err := s.load(ctx, cmd.OrderID, cmd.ExpectedStatus)
	if err != nil {
		return CancelOrderResult{}, err
	}

	now := s.clock()
	next, err := s.machine.Cancel(current, CancelRequest{
		Actor:   cmd.Actor,
		Reason:  cmd.Reason,
		Note:    cmd.Note,
		ActorID: cmd.ActorID,
	}, now)
	if err != nil {
		return CancelOrderResult{}, err
	}
	if err := s.save(ctx, current, next); err != nil {
		return CancelOrderResult{}, err
	}
	s.publishStatusChange(ctx, current, next, cmd.ActorID)
	return CancelOrderResult{Order: next, Refundable: next.Refundable()}, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (domain.Order, error) {
	if _, ok := domain.ParsePaymentStatus(string(cmd.Status)); !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.Status)
	}
	current, err := s.load(ctx, cmd.OrderID, nil)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	next, changed, err := s.machine.TransitionPayment(current, cmd.Status, cmd.ActorID, now)
	if err != nil {
		return domain.Order{}, err
	}
	intentID := strings.TrimSpace(cmd.IntentID)
	attachIntent := intentID != "" && next.Payment.IntentID == ""
	if !changed && !attachIntent {
		return current, nil
	}
	if attachIntent {
		if !changed {
			next = current.Clone()
			next.UpdatedAt = now
		}
		next.Payment.IntentID = intentID
		if provider := strings.TrimSpace(cmd.Provider); provider != "" {
			next.Payment.Provider = provider
		}
	}
	if err := s.save(ctx, current, next); err != nil {
		return domain.Order{}, err
	}
	if changed {
		s.publish(ctx, OrderEvent{
			Type:           OrderEventPaymentChange,
			OrderID:        next.ID,
			CustomerID:     next.CustomerID,
			PreviousStatus: string(current.PaymentStatus),
			CurrentStatus:  string(next.PaymentStatus),
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}
	return next, nil
}

func (s *orderService) InitiateRefund(ctx context.Context, cmd InitiateRefundCommand) (domain.Order, error) {
	if cmd.Amount != nil && *cmd.Amount <= 0 {
		return domain.Order{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderInvalidInput)
	}
	current, err := s.load(ctx, cmd.OrderID, nil)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	next, err := s.tracker.Initiate(current, RefundInitiation{
		Amount:  cmd.Amount,
		Reason:  cmd.Reason,
		ActorID: cmd.ActorID,
	}, now)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.save(ctx, current, next); err != nil {
		return domain.Order{}, err
	}
	s.publishRefundChange(ctx, current, next, cmd.ActorID)
	return next, nil
}

func (s *orderService) UpdateRefundStatus(ctx context.Context, cmd UpdateRefundStatusCommand) (domain.Order, error) {
	if _, ok := domain.ParseRefundStatus(string(cmd.Status)); !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown refund status %q", ErrOrderInvalidInput, cmd.Status)
	}
	current, err := s.load(ctx, cmd.OrderID, nil)
	if err != nil {
		return domain.Order{}, err
	}

	update := RefundUpdate{
		Status:      cmd.Status,
		ConfirmUndo: cmd.ConfirmUndo,
		ActorID:     cmd.ActorID,
	}
	now := s.clock()
	if _, err := s.tracker.Transition(current, update, now); err != nil {
		return domain.Order{}, err
	}

	if s.shouldExecuteRefund(current, cmd.Status) {
		result, err := s.executeRefund(ctx, current)
		if err != nil {
			return domain.Order{}, err
		}
		update.RefundID = result.RefundID
	}

	next, err := s.tracker.Transition(current, update, now)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.save(ctx, current, next); err != nil {
		return domain.Order{}, err
	}
	s.publishRefundChange(ctx, current, next, cmd.ActorID)
	return next, nil
}

func (s *orderService) shouldExecuteRefund(order domain.Order, to domain.RefundStatus) bool {
	return s.refunds != nil &&
		order.Refund.Status == domain.RefundStatusRequested &&
		to == domain.RefundStatusProcessing &&
		order.Payment.IntentID != ""
}

func (s *orderService) executeRefund(ctx context.Context, order domain.Order) (payments.RefundResult, error) {
	result, err := s.refunds.Refund(ctx, payments.RefundRequest{
		Provider:       order.Payment.Provider,
		IntentID:       order.Payment.IntentID,
		Amount:         order.Refund.Amount,
		Reason:         order.Refund.Reason,
		IdempotencyKey: order.Refund.RefundID,
		Metadata: map[string]string{
			"order_id":  order.ID,
			"refund_id": order.Refund.RefundID,
		},
	})
	if err != nil {
		s.logger(ctx, "refund.gateway.failed", map[string]any{
			"orderId":  order.ID,
			"refundId": order.Refund.RefundID,
			"error":    err.Error(),
		})
		return payments.RefundResult{}, fmt.Errorf("%w: refund gateway: %v", ErrOrderUnavailable, err)
	}
	if result.Status == payments.RefundFailed {
		return payments.RefundResult{}, fmt.Errorf("%w: refund %s was declined by the provider", ErrOrderUnavailable, result.RefundID)
	}
	return result, nil
}

func (s *orderService) price(ctx context.Context, items []CartLine, couponCode string) (PriceBreakdown, time.Time, error) {
	if len(items) == 0 {
		return PriceBreakdown{}, time.Time{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	lines, err := resolveCartLines(ctx, s.catalog, items)
	if err != nil {
		if errors.Is(err, ErrPricingInvalidInput) {
			return PriceBreakdown{}, time.Time{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return PriceBreakdown{}, time.Time{}, orderRepoErrors.mapError(err)
	}
	discounts, err := s.discounts.List(ctx, repositories.DiscountListFilter{ActiveOnly: true})
	if err != nil {
		return PriceBreakdown{}, time.Time{}, orderRepoErrors.mapError(err)
	}

	var candidate *CouponCandidate
	if code := domain.NormalizeCouponCode(couponCode); code != "" {
		candidate = &CouponCandidate{Code: code}
		coupon, err := s.coupons.FindByCode(ctx, code)
		switch {
		case err == nil:
			candidate.Coupon = &coupon
		case isRepoNotFound(err):
		default:
			return PriceBreakdown{}, time.Time{}, couponRepoErrors.mapError(err)
		}
	}

	now := s.clock()
	breakdown, err := s.calculator.Compute(ctx, lines, discounts, candidate, now)
	if err != nil {
		if errors.Is(err, ErrPricingInvalidInput) {
			return PriceBreakdown{}, time.Time{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return PriceBreakdown{}, time.Time{}, err
	}
	return breakdown, now, nil
}

// load reads the order and checks the caller's view of its status when one was supplied.
func (s *orderService) load(ctx context.Context, orderID string, expected *domain.OrderStatus) (domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if expected != nil && *expected != "" && order.Status != *expected {
		return domain.Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *expected, order.Status)
	}
	return order, nil
}

func (s *orderService) save(ctx context.Context, current, next domain.Order) error {
	if err := s.orders.UpdateIf(ctx, next, repositories.ExpectationFor(current)); err != nil {
		return orderRepoErrors.mapError(err)
	}
	return nil
}

func (s *orderService) releaseCoupon(ctx context.Context, code, orderID string) {
	if _, err := s.coupons.ReleaseUsage(ctx, code, s.clock()); err != nil {
		s.logger(ctx, "coupon.usage.release.failed", map[string]any{
			"couponCode": code,
			"orderId":    orderID,
			"error":      err.Error(),
		})
	}
}

func (s *orderService) publishStatusChange(ctx context.Context, before, after domain.Order, actorID string) {
	metadata := map[string]any{}
	if after.CancelledBy != "" {
		metadata["cancelledBy"] = string(after.CancelledBy)
		metadata["refundable"] = after.Refundable()
	}
	if after.CancelReason != "" {
		metadata["cancelReason"] = string(after.CancelReason)
	}
	s.publish(ctx, OrderEvent{
		Type:           OrderEventStatusChanged,
		OrderID:        after.ID,
		CustomerID:     after.CustomerID,
		PreviousStatus: string(before.Status),
		CurrentStatus:  string(after.Status),
		ActorID:        actorID,
		OccurredAt:     after.UpdatedAt,
		Metadata:       metadata,
	})
}

func (s *orderService) publishRefundChange(ctx context.Context, before, after domain.Order, actorID string) {
	metadata := map[string]any{
		"refundId":      after.Refund.RefundID,
		"paymentStatus": string(after.PaymentStatus),
	}
	if after.Refund.Amount != nil {
		metadata["amount"] = *after.Refund.Amount
	}
	s.publish(ctx, OrderEvent{
		Type:           OrderEventRefundChanged,
		OrderID:        after.ID,
		CustomerID:     after.CustomerID,
		PreviousStatus: string(before.Refund.Status),
		CurrentStatus:  string(after.Refund.Status),
		ActorID:        actorID,
		OccurredAt:     after.UpdatedAt,
		Metadata:       metadata,
	})
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	event.Metadata = maps.Clone(event.Metadata)
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    event.Type,
			"orderId": event.OrderID,
			"error":   err.Error(),
		})
	}
}

func orderItemsFrom(lines []PriceLine) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, domain.OrderItem{
			ProductID:              strings.TrimSpace(line.ProductID),
			Name:                   strings.TrimSpace(line.Name),
			Category:               strings.TrimSpace(line.Category),
			Image:                  strings.TrimSpace(line.Image),
			UnitPrice:              line.UnitPrice,
			Quantity:               line.Quantity,
			DiscountID:             line.DiscountID,
			ProductDiscountPerUnit: line.ProductDiscountPerUnit,
			FinalUnitPrice:         line.FinalUnitPrice,
		})
	}
	return items
}

func ensureOrderPrefix(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, orderIDPrefix) {
		return id
	}
	return orderIDPrefix + id
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
