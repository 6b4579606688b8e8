package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/hanko-field/storefront/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEventPublisher writes order events keyed by order id so that every event of one
// order lands on the same partition.
type KafkaOrderEventPublisher struct {
	writer  messageWriter
	marshal func(any) ([]byte, error)
}

// NewKafkaWriter requires leader acknowledgement only.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaOrderEventPublisher(writer messageWriter) (*KafkaOrderEventPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka order event publisher: writer is required")
	}
	return &KafkaOrderEventPublisher{writer: writer, marshal: json.Marshal}, nil
}

func (p *KafkaOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	msg := newEventMessage(event)
	data, err := p.marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	attrs := msg.attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventType", "orderId", "customerId"} {
		if value, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	key := strings.TrimSpace(msg.OrderID)
	if key == "" {
		key = msg.Type
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
		Time:    msg.OccurredAt,
	}); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

func (p *KafkaOrderEventPublisher) Close() error {
	return p.writer.Close()
}
