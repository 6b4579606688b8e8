package domain

import (
	"slices"
	"strings"
	"time"
)

// OrderStatus enumerates the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatusFlow is the happy path in order; cancelled sits outside it.
var OrderStatusFlow = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
}

// ParseOrderStatus normalises and validates a status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if status == OrderStatusCancelled || slices.Contains(OrderStatusFlow, status) {
		return status, true
	}
	return "", false
}

// Terminal reports whether no further fulfilment transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// PaymentStatus tracks the payment of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus normalises and validates a payment status string.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch status := PaymentStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusRefunded:
		return status, true
	default:
		return "", false
	}
}

// RefundStatus tracks the refund sub-state of an order.
type RefundStatus string

const (
	RefundStatusNone       RefundStatus = "none"
	RefundStatusRequested  RefundStatus = "requested"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusRejected   RefundStatus = "rejected"
)

// ParseRefundStatus normalises and validates a refund status string.
func ParseRefundStatus(raw string) (RefundStatus, bool) {
	switch status := RefundStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case RefundStatusNone, RefundStatusRequested, RefundStatusProcessing, RefundStatusCompleted, RefundStatusRejected:
		return status, true
	default:
		return "", false
	}
}

// CancelActor identifies who cancelled an order.
type CancelActor string

const (
	CancelActorCustomer CancelActor = "customer"
	CancelActorAdmin    CancelActor = "admin"
	CancelActorSystem   CancelActor = "system"
)

// CancelReason is the fixed set of customer cancellation reasons.
type CancelReason string

const (
	CancelReasonChangedMind      CancelReason = "changed_mind"
	CancelReasonOrderedByMistake CancelReason = "ordered_by_mistake"
	CancelReasonFoundBetterPrice CancelReason = "found_better_price"
	CancelReasonDeliveryTooSlow  CancelReason = "delivery_too_slow"
	CancelReasonPaymentIssue     CancelReason = "payment_issue"
	CancelReasonOther            CancelReason = "other"
)

var cancelReasons = []CancelReason{
	CancelReasonChangedMind,
	CancelReasonOrderedByMistake,
	CancelReasonFoundBetterPrice,
	CancelReasonDeliveryTooSlow,
	CancelReasonPaymentIssue,
	CancelReasonOther,
}

// ParseCancelReason normalises and validates a cancellation reason code.
func ParseCancelReason(raw string) (CancelReason, bool) {
	reason := CancelReason(strings.ToLower(strings.TrimSpace(raw)))
	if slices.Contains(cancelReasons, reason) {
		return reason, true
	}
	return "", false
}

// OrderItem is a priced line frozen at order creation.
type OrderItem struct {
	ProductID              string
	Name                   string
	Category               string
	Image                  string
	UnitPrice              int64
	Quantity               int64
	DiscountID             string
	ProductDiscountPerUnit int64
	FinalUnitPrice         int64
}

// LineTotal is FinalUnitPrice*Quantity.
func (i OrderItem) LineTotal() int64 {
	return i.FinalUnitPrice * i.Quantity
}

// RefundState is the refund sub-state machine of an order.
type RefundState struct {
	Status      RefundStatus
	RefundID    string
	Amount      *int64
	InitiatedAt *time.Time
	CompletedAt *time.Time
	Reason      string
}

// TimelineEntry is one append-only event in an order's history.
type TimelineEntry struct {
	Event       string
	At          time.Time
	Description string
	Actor       string
}

// PaymentReference links an order to a payment provider intent.
type PaymentReference struct {
	Provider string
	IntentID string
}

// Order is the persisted purchase with its lifecycle sub-states.
type Order struct {
	ID                   string
	CustomerID           string
	Items                []OrderItem
	Subtotal             int64
	ProductDiscountTotal int64
	CouponCode           string
	CouponDiscountTotal  int64
	FinalAmount          int64
	PaymentStatus        PaymentStatus
	Status               OrderStatus
	CancelledBy          CancelActor
	CancelReason         CancelReason
	CancelNote           string
	CancelledAt          *time.Time
	Refund               RefundState
	Timeline             []TimelineEntry
	Payment              PaymentReference
	CouponRedeemed       bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Refundable reports whether a refund could be initiated for the order.
func (o Order) Refundable() bool {
	return o.PaymentStatus == PaymentStatusSuccess && o.Refund.Status == RefundStatusNone
}

// AppendTimeline adds an entry to the order history.
func (o *Order) AppendTimeline(event string, at time.Time, description string, actor string) {
	o.Timeline = append(o.Timeline, TimelineEntry{
		Event:       event,
		At:          at,
		Description: description,
		Actor:       actor,
	})
}

// Clone returns a deep copy so callers may mutate without aliasing stored state.
func (o Order) Clone() Order {
	out := o
	out.Items = slices.Clone(o.Items)
	out.Timeline = slices.Clone(o.Timeline)
	out.CancelledAt = cloneTime(o.CancelledAt)
	out.Refund.InitiatedAt = cloneTime(o.Refund.InitiatedAt)
	out.Refund.CompletedAt = cloneTime(o.Refund.CompletedAt)
	if o.Refund.Amount != nil {
		amount := *o.Refund.Amount
		out.Refund.Amount = &amount
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
