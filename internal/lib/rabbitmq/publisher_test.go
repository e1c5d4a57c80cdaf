package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-engine/internal/models"
)

func TestPublishMessage(t *testing.T) {
	ctx := context.Background()
	rmqContainer, cleanup := SetupRabbitMQContainer(ctx, t)
	defer cleanup()

	amqpURI, err := GetAmqpURI(ctx, rmqContainer)
	require.NoError(t, err)

	conn, err := Connect(amqpURI, 3, time.Second)
	require.NoError(t, err)
	defer func() {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close connection: %v", err)
		}
	}()

	ch, err := SetupChannel(conn, GetNotificationQueues())
	require.NoError(t, err)
	defer func() {
		if err := ch.Close(); err != nil {
			t.Errorf("failed to close channel: %v", err)
		}
	}()

	t.Run("success publish and consume plan expired notification", func(t *testing.T) {
		msg := models.EntitlementInfo{
			CompanyID: "4b4ac414-6ae1-4a62-a312-1b57b1b0662b",
			PlanName:  "Premium 30",
			EndAt:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}

		err := PublishMessage(ch, Exchange, RoutingKeyExpired, msg)
		require.NoError(t, err)

		// даём брокеру время на маршрутизацию
		time.Sleep(500 * time.Millisecond)

		delivery, ok, err := ch.Get("notification.plan-expired", true)
		require.NoError(t, err)
		require.True(t, ok, "expected a message in the queue")

		var got models.EntitlementInfo
		require.NoError(t, json.Unmarshal(delivery.Body, &got))
		assert.Equal(t, msg.CompanyID, got.CompanyID)
		assert.Equal(t, msg.PlanName, got.PlanName)
	})

	t.Run("unroutable routing key is dropped silently", func(t *testing.T) {
		err := PublishMessage(ch, Exchange, "plan.unknown", map[string]string{"x": "y"})
		assert.NoError(t, err)
	})
}
