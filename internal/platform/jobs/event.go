// Package jobs delivers order domain events to downstream consumers over Pub/Sub or Kafka.
package jobs

import (
	"strings"
	"time"

	"github.com/hanko-field/storefront/internal/services"
)

// eventMessage is the wire payload shared by every transport.
type eventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId,omitempty"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func newEventMessage(event services.OrderEvent) eventMessage {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return eventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		CustomerID:     event.CustomerID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	}
}

func (m eventMessage) attributes() map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventType", m.Type)
	setAttr(attrs, "orderId", m.OrderID)
	setAttr(attrs, "customerId", m.CustomerID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
