package broadcast

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"pharmacy-inventory/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "", zap.NewNop()), mr
}

func TestBroadcaster_PublishSubscribe(t *testing.T) {
	b, _ := setupBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := b.Subscribe(ctx)
	require.NoError(t, err)

	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		ID:         42,
		Type:       models.AlertStockLow,
		Title:      "Low Stock Alert",
		Message:    "Paracetamol is running low. Current quantity: 3 (minimum: 10)",
		Severity:   models.SeverityWarning,
		EntityType: models.EntityMedicine,
		EntityID:   sql.NullInt64{Int64: 7, Valid: true},
		CreatedAt:  created,
		ExpiresAt:  created.Add(7 * 24 * time.Hour),
	}
	require.NoError(t, b.Publish(ctx, alert))

	select {
	case msg := <-messages:
		assert.Equal(t, int64(42), msg.AlertID)
		assert.Equal(t, "stock_low", msg.Type)
		assert.Equal(t, "warning", msg.Severity)
		require.NotNil(t, msg.EntityID)
		assert.Equal(t, int64(7), *msg.EntityID)
		assert.NotEmpty(t, msg.MessageID)
		assert.True(t, created.Equal(msg.CreatedAt))
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for alert message")
	}
}

func TestBroadcaster_SubscriptionEndsWithContext(t *testing.T) {
	b, _ := setupBroadcaster(t)
	ctx, cancel := context.WithCancel(context.Background())

	messages, err := b.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-messages:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscription did not close after cancel")
	}
}

func TestBroadcaster_PublishFailsWhenRedisIsDown(t *testing.T) {
	b, mr := setupBroadcaster(t)
	mr.Close()

	err := b.Publish(context.Background(), &models.Alert{ID: 1, Type: models.AlertSystem})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish alert")
}

func TestBroadcaster_MessageIDsAreUnique(t *testing.T) {
	alert := &models.Alert{ID: 1, Type: models.AlertSystem}
	assert.NotEqual(t, newAlertMessage(alert).MessageID, newAlertMessage(alert).MessageID)
	assert.Nil(t, newAlertMessage(alert).EntityID)
}
