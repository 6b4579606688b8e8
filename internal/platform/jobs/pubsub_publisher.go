package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/hanko-field/storefront/internal/services"
)

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

func NewPubSubOrderEventPublisher(topic *pubsub.Topic) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	return &PubSubOrderEventPublisher{topic: topic, marshal: json.Marshal}, nil
}

// PublishOrderEvent blocks until the server acknowledges the message.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}
	msg := newEventMessage(event)
	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: msg.attributes()})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubOrderEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
