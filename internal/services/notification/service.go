// Package notification delivers domain events to subscribers outside the
// service.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kudi/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event is one outbox message on the wire.
type Event struct {
	ID          uint        `json:"id"`
	Topic       string      `json:"topic"`
	AggregateID string      `json:"aggregate_id"`
	Payload     models.JSON `json:"payload"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// FromOutbox converts a stored outbox message.
func FromOutbox(msg models.OutboxMessage) Event {
	return Event{
		ID:          msg.ID,
		Topic:       msg.Topic,
		AggregateID: msg.AggregateID,
		Payload:     msg.Payload,
		OccurredAt:  msg.CreatedAt,
	}
}

// Publisher delivers events. Delivery is at least once, so subscribers must
// deduplicate on Event.ID.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// RedisPublisher publishes events on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// LogPublisher writes events to the log. It stands in when Redis is not
// configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("event",
		zap.Uint("id", event.ID),
		zap.String("topic", event.Topic),
		zap.String("aggregate_id", event.AggregateID),
		zap.Any("payload", event.Payload))
	return nil
}
