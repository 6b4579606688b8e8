package services

import (
	"context"
	"time"
)

const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status.changed"
	OrderEventPaymentChange = "order.payment.changed"
	OrderEventRefundChanged = "order.refund.changed"
	CouponEventRedeemed     = "coupon.redeemed"
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}
