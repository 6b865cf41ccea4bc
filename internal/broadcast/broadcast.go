// Package broadcast fans newly stored alerts out over redis pub/sub so every
// server process can push them to connected clients.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pharmacy-inventory/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the redis channel alerts are published on
const DefaultChannel = "pharmacy:alerts"

// AlertMessage is the wire form of a published alert
type AlertMessage struct {
	MessageID   string    `json:"message_id"`
	AlertID     int64     `json:"alert_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Severity    string    `json:"severity"`
	EntityType  string    `json:"entity_type"`
	EntityID    *int64    `json:"entity_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	PublishedAt time.Time `json:"published_at"`
}

func newAlertMessage(alert *models.Alert) AlertMessage {
	msg := AlertMessage{
		MessageID:   uuid.NewString(),
		AlertID:     alert.ID,
		Type:        string(alert.Type),
		Title:       alert.Title,
		Message:     alert.Message,
		Severity:    string(alert.Severity),
		EntityType:  string(alert.EntityType),
		CreatedAt:   alert.CreatedAt,
		ExpiresAt:   alert.ExpiresAt,
		PublishedAt: time.Now().UTC(),
	}
	if alert.EntityID.Valid {
		id := alert.EntityID.Int64
		msg.EntityID = &id
	}
	return msg
}

// Broadcaster publishes and subscribes to alert messages
type Broadcaster struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func New(client *redis.Client, channel string, logger *zap.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{client: client, channel: channel, logger: logger}
}

// Publish sends alert to every subscriber
func (b *Broadcaster) Publish(ctx context.Context, alert *models.Alert) error {
	data, err := json.Marshal(newAlertMessage(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Subscribe delivers alert messages until ctx is cancelled. The returned
// channel is closed when the subscription ends.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan AlertMessage, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no message published after
	// Subscribe returns is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan AlertMessage, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var alert AlertMessage
				if err := json.Unmarshal([]byte(msg.Payload), &alert); err != nil {
					b.logger.Warn("Dropping malformed alert message", zap.Error(err))
					continue
				}
				select {
				case out <- alert:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping checks the redis connection
func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
