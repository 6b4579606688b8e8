package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
)

const refundIDPrefix = "rfd_"

var refundTransitions = map[domain.RefundStatus][]domain.RefundStatus{
	domain.RefundStatusNone:       {domain.RefundStatusRequested},
	domain.RefundStatusRequested:  {domain.RefundStatusProcessing, domain.RefundStatusRejected},
	domain.RefundStatusProcessing: {domain.RefundStatusCompleted, domain.RefundStatusRejected},
	domain.RefundStatusCompleted:  {domain.RefundStatusProcessing},
}

// RefundInitiation describes a refund request.
type RefundInitiation struct {
	// Amount defaults to the order's final amount when nil.
	Amount  *int64
	Reason  string
	ActorID string
}

// RefundUpdate describes a refund status change.
type RefundUpdate struct {
	Status domain.RefundStatus
	// ConfirmUndo must be set to move completed back to processing.
	ConfirmUndo bool
	// RefundID overrides the tracked refund id, e.g. with a gateway reference.
	RefundID string
	ActorID  string
}

// RefundTracker drives the refund sub-state of an order.
type RefundTracker struct {
	newID func() string
}

// NewRefundTracker builds a tracker; newID defaults to a prefixed ULID.
func NewRefundTracker(newID func() string) RefundTracker {
	if newID == nil {
		newID = func() string { return refundIDPrefix + ulid.Make().String() }
	}
	return RefundTracker{newID: newID}
}

// CanTransition reports whether the refund state may move from one status to another.
func (RefundTracker) CanTransition(from, to domain.RefundStatus) bool {
	return slices.Contains(refundTransitions[from], to)
}

// Initiate moves a refund from none to requested. It requires a successful payment; the order
// status is irrelevant so cancelled orders can be refunded.
func (t RefundTracker) Initiate(order domain.Order, req RefundInitiation, now time.Time) (domain.Order, error) {
	status := order.Refund.Status
	if status == "" {
		status = domain.RefundStatusNone
	}
	if status != domain.RefundStatusNone {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonRefundTransition, "refund already %s", status)
	}
	if order.PaymentStatus != domain.PaymentStatusSuccess {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonRefundNotAllowed, "refunds require a successful payment, payment is %s", order.PaymentStatus)
	}

	amount := order.FinalAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 || amount > order.FinalAmount {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonRefundAmountOutOfRange, "refund amount %d must be between 1 and %d", amount, order.FinalAmount)
	}

	next := order.Clone()
	next.Refund = domain.RefundState{
		Status:      domain.RefundStatusRequested,
		RefundID:    t.newID(),
		Amount:      &amount,
		InitiatedAt: &now,
		Reason:      strings.TrimSpace(req.Reason),
	}
	next.UpdatedAt = now
	next.AppendTimeline(timelineRefundRequested, now, fmt.Sprintf("refund of %d requested", amount), req.ActorID)
	return next, nil
}

// Transition applies a refund status update after initiation. completed sets the payment to
// refunded only when the refund covers FinalAmount; a partial refund leaves it at success.
// The confirmed undo (completed -> processing) restores a refunded payment to success.
func (t RefundTracker) Transition(order domain.Order, upd RefundUpdate, now time.Time) (domain.Order, error) {
	from := order.Refund.Status
	if from == "" {
		from = domain.RefundStatusNone
	}
	to := upd.Status
	if to == domain.RefundStatusRequested && from == domain.RefundStatusNone {
		return order, fmt.Errorf("%w: refunds are requested through initiation", ErrOrderInvalidInput)
	}
	if !t.CanTransition(from, to) {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonRefundTransition, "cannot move refund from %s to %s", from, to)
	}
	undo := from == domain.RefundStatusCompleted && to == domain.RefundStatusProcessing
	if undo && !upd.ConfirmUndo {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonRefundUndoUnconfirmed, "reverting a completed refund requires explicit confirmation")
	}

	next := order.Clone()
	next.Refund.Status = to
	if id := strings.TrimSpace(upd.RefundID); id != "" {
		next.Refund.RefundID = id
	}
	next.UpdatedAt = now

	switch {
	case to == domain.RefundStatusCompleted:
		next.Refund.CompletedAt = &now
		next.AppendTimeline(timelineRefundChanged, now, fmt.Sprintf("%s -> %s", from, to), upd.ActorID)
		if fullRefund(order) {
			next.PaymentStatus = domain.PaymentStatusRefunded
			next.AppendTimeline(timelinePaymentChanged, now, fmt.Sprintf("%s -> %s", order.PaymentStatus, domain.PaymentStatusRefunded), upd.ActorID)
		}
	case undo:
		next.Refund.CompletedAt = nil
		next.AppendTimeline(timelineRefundUndone, now, fmt.Sprintf("%s -> %s", from, to), upd.ActorID)
		if order.PaymentStatus == domain.PaymentStatusRefunded {
			next.PaymentStatus = domain.PaymentStatusSuccess
			next.AppendTimeline(timelinePaymentChanged, now, fmt.Sprintf("%s -> %s", order.PaymentStatus, domain.PaymentStatusSuccess), upd.ActorID)
		}
	default:
		next.AppendTimeline(timelineRefundChanged, now, fmt.Sprintf("%s -> %s", from, to), upd.ActorID)
	}
	return next, nil
}

// fullRefund reports whether the tracked amount covers the order. A missing amount means the
// whole order, matching Initiate's default.
func fullRefund(order domain.Order) bool {
	return order.Refund.Amount == nil || *order.Refund.Amount >= order.FinalAmount
}
