package services

import (
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/textutil"
)

// AdminTransitionPolicy decides which status changes staff may apply.
type AdminTransitionPolicy string

const (
	// AdminPolicyForwardOnly allows moving later along the happy path (skipping steps) or to cancelled.
	AdminPolicyForwardOnly AdminTransitionPolicy = "forward_only"
	// AdminPolicyPermissive allows any status from a non-terminal status.
	AdminPolicyPermissive AdminTransitionPolicy = "permissive"
)

// ParseAdminTransitionPolicy validates a configured policy name; empty means forward_only.
func ParseAdminTransitionPolicy(raw string) (AdminTransitionPolicy, error) {
	switch policy := AdminTransitionPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "", AdminPolicyForwardOnly:
		return AdminPolicyForwardOnly, nil
	case AdminPolicyPermissive:
		return AdminPolicyPermissive, nil
	default:
		return "", fmt.Errorf("unknown admin transition policy %q", raw)
	}
}

const (
	maxCancelNoteRunes = 500

	timelineOrderCreated    = "order_created"
	timelineStatusChanged   = "status_changed"
	timelineOrderCancelled  = "order_cancelled"
	timelinePaymentChanged  = "payment_status_changed"
	timelineRefundRequested = "refund_requested"
	timelineRefundChanged   = "refund_status_changed"
	timelineRefundUndone    = "refund_undone"
)

// Reason codes carried by RuleViolation for order lifecycle rejections.
const (
	ReasonOrderTerminal          = "order_terminal"
	ReasonTransitionNotAllowed   = "transition_not_allowed"
	ReasonNotCancellable         = "not_cancellable"
	ReasonPaymentTransition      = "payment_transition_not_allowed"
	ReasonRefundNotAllowed       = "refund_not_allowed"
	ReasonRefundTransition       = "refund_transition_not_allowed"
	ReasonRefundUndoUnconfirmed  = "refund_undo_requires_confirmation"
	ReasonRefundAmountOutOfRange = "refund_amount_out_of_range"
)

var paymentTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending: {domain.PaymentStatusSuccess, domain.PaymentStatusFailed},
	domain.PaymentStatusFailed:  {domain.PaymentStatusPending, domain.PaymentStatusSuccess},
}

// CancelRequest describes a cancellation attempt.
type CancelRequest struct {
	Actor  domain.CancelActor
	Reason domain.CancelReason
	// Note is the free text required with CancelReasonOther.
	Note    string
	ActorID string
}

// OrderStateMachine applies lifecycle transitions to order snapshots. Every method returns a
// new order value; inputs are never mutated.
type OrderStateMachine struct {
	policy AdminTransitionPolicy
}

// NewOrderStateMachine builds a state machine using policy for staff transitions.
func NewOrderStateMachine(policy AdminTransitionPolicy) OrderStateMachine {
	if policy == "" {
		policy = AdminPolicyForwardOnly
	}
	return OrderStateMachine{policy: policy}
}

// Policy returns the configured staff transition policy.
func (m OrderStateMachine) Policy() AdminTransitionPolicy {
	return m.policy
}

// CanCancel reports whether a customer may still cancel an order in status.
func (OrderStateMachine) CanCancel(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusShipped, domain.OrderStatusDelivered, domain.OrderStatusCancelled:
		return false
	default:
		return true
	}
}

// CanTransition reports whether staff may move an order from one status to another.
func (m OrderStateMachine) CanTransition(from, to domain.OrderStatus) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == domain.OrderStatusCancelled {
		return true
	}
	toIdx := slices.Index(domain.OrderStatusFlow, to)
	if toIdx < 0 {
		return false
	}
	if m.policy == AdminPolicyPermissive {
		return true
	}
	return toIdx > slices.Index(domain.OrderStatusFlow, from)
}

// Transition applies a staff status change. Re-applying the current status returns the order
// unchanged with changed=false.
func (m OrderStateMachine) Transition(order domain.Order, to domain.OrderStatus, actorID string, now time.Time) (domain.Order, bool, error) {
	if order.Status == to {
		return order, false, nil
	}
	if order.Status.Terminal() {
		return order, false, newRuleViolation(ErrOrderInvalidState, ReasonOrderTerminal, "order is %s and can no longer change", order.Status)
	}
	if !m.CanTransition(order.Status, to) {
		return order, false, newRuleViolation(ErrOrderInvalidState, ReasonTransitionNotAllowed, "cannot move order from %s to %s under %s policy", order.Status, to, m.policy)
	}

	next := order.Clone()
	from := next.Status
	next.Status = to
	next.UpdatedAt = now
	if to == domain.OrderStatusCancelled {
		next.CancelledBy = domain.CancelActorAdmin
		next.CancelledAt = &now
		next.AppendTimeline(timelineOrderCancelled, now, fmt.Sprintf("cancelled by admin from %s", from), actorID)
		return next, true, nil
	}
	next.AppendTimeline(timelineStatusChanged, now, fmt.Sprintf("%s -> %s", from, to), actorID)
	return next, true, nil
}

// Cancel applies a customer or system cancellation. Customers are bound by CanCancel; the
// system actor may cancel any non-terminal order.
func (m OrderStateMachine) Cancel(order domain.Order, req CancelRequest, now time.Time) (domain.Order, error) {
	if order.Status.Terminal() {
		return order, newRuleViolation(ErrOrderInvalidState, ReasonOrderTerminal, "order is %s and can no longer be cancelled", order.Status)
	}

	var note string
	switch req.Actor {
	case domain.CancelActorCustomer:
		if !m.CanCancel(order.Status) {
			return order, newRuleViolation(ErrOrderInvalidState, ReasonNotCancellable, "order in status %s cannot be cancelled by the customer", order.Status)
		}
		reason, ok := domain.ParseCancelReason(string(req.Reason))
		if !ok {
			return order, fmt.Errorf("%w: unknown cancellation reason %q", ErrOrderInvalidInput, req.Reason)
		}
		req.Reason = reason
		if reason == domain.CancelReasonOther {
			note = textutil.SanitizePlain(req.Note, maxCancelNoteRunes)
			if note == "" {
				return order, fmt.Errorf("%w: a custom reason is required when reason is other", ErrOrderInvalidInput)
			}
		}
	case domain.CancelActorSystem, domain.CancelActorAdmin:
		if req.Reason != "" {
			reason, ok := domain.ParseCancelReason(string(req.Reason))
			if !ok {
				return order, fmt.Errorf("%w: unknown cancellation reason %q", ErrOrderInvalidInput, req.Reason)
			}
			req.Reason = reason
		}
		note = textutil.SanitizePlain(req.Note, maxCancelNoteRunes)
	default:
		return order, fmt.Errorf("%w: unknown cancelling actor %q", ErrOrderInvalidInput, req.Actor)
	}

	next := order.Clone()
	from := next.Status
	next.Status = domain.OrderStatusCancelled
	next.CancelledBy = req.Actor
	next.CancelReason = req.Reason
	next.CancelNote = note
	next.CancelledAt = &now
	next.UpdatedAt = now
	description := fmt.Sprintf("cancelled by %s from %s", req.Actor, from)
	if req.Reason != "" {
		description += ": " + string(req.Reason)
	}
	next.AppendTimeline(timelineOrderCancelled, now, description, req.ActorID)
	return next, nil
}

// CanTransitionPayment reports whether a direct payment status update is allowed. Moves to and
// from refunded are owned by the refund tracker.
func (OrderStateMachine) CanTransitionPayment(from, to domain.PaymentStatus) bool {
	return slices.Contains(paymentTransitions[from], to)
}

// TransitionPayment applies a payment status update. Same-status updates are no-ops. Payment
// changes remain possible on cancelled orders so late captures and failures are recorded.
func (m OrderStateMachine) TransitionPayment(order domain.Order, to domain.PaymentStatus, actorID string, now time.Time) (domain.Order, bool, error) {
	if order.PaymentStatus == to {
		return order, false, nil
	}
	if !m.CanTransitionPayment(order.PaymentStatus, to) {
		return order, false, newRuleViolation(ErrOrderInvalidState, ReasonPaymentTransition, "cannot move payment from %s to %s", order.PaymentStatus, to)
	}
	next := order.Clone()
	from := next.PaymentStatus
	next.PaymentStatus = to
	next.UpdatedAt = now
	next.AppendTimeline(timelinePaymentChanged, now, fmt.Sprintf("%s -> %s", from, to), actorID)
	return next, true, nil
}
