package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/storefront/internal/services"
)

var _ services.OrderEventPublisher = (*PubSubOrderEventPublisher)(nil)

func TestPubSubOrderEventPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	topic, err := client.CreateTopic(ctx, "order-events")
	require.NoError(t, err)

	publisher, err := NewPubSubOrderEventPublisher(topic)
	require.NoError(t, err)
	defer publisher.Stop()

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishOrderEvent(ctx, services.OrderEvent{
		Type:           services.OrderEventStatusChanged,
		OrderID:        "ord_1",
		CustomerID:     "cust_1",
		PreviousStatus: "pending",
		CurrentStatus:  "confirmed",
		ActorID:        "ops_1",
		OccurredAt:     occurred,
	})
	require.NoError(t, err)

	messages := srv.Messages()
	require.Len(t, messages, 1)

	var payload eventMessage
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ord_1", payload.OrderID)
	assert.Equal(t, "confirmed", payload.CurrentStatus)
	assert.True(t, occurred.Equal(payload.OccurredAt))
	assert.Equal(t, services.OrderEventStatusChanged, messages[0].Attributes["eventType"])
	assert.Equal(t, "cust_1", messages[0].Attributes["customerId"])
}

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	_, err := NewPubSubOrderEventPublisher(nil)
	assert.Error(t, err)
}
