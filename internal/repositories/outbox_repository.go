package repositories

import (
	"context"
	"fmt"
	"time"

	"kudi/internal/models"

	"gorm.io/gorm"
)

type OutboxRepository interface {
	Enqueue(ctx context.Context, topic, aggregateID string, payload models.JSON) error
	FetchDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error)
	MarkPublished(ctx context.Context, id uint, at time.Time) error
	// MarkFailed records a failed attempt. A zero next time marks the message dead.
	MarkFailed(ctx context.Context, id uint, lastErr string, next time.Time) error
}

type outboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, topic, aggregateID string, payload models.JSON) error {
	msg := models.OutboxMessage{
		Topic:         topic,
		AggregateID:   aggregateID,
		Payload:       payload,
		NextAttemptAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}
	return nil
}

func (r *outboxRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]models.OutboxMessage, error) {
	var out []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL AND dead_at IS NULL AND next_attempt_at <= ?", now.UTC()).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox messages: %w", err)
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id uint, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"published_at": at.UTC(),
		"attempts":     gorm.Expr("attempts + 1"),
		"last_error":   "",
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uint, lastErr string, next time.Time) error {
	fields := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": lastErr,
	}
	if next.IsZero() {
		fields["dead_at"] = time.Now().UTC()
	} else {
		fields["next_attempt_at"] = next.UTC()
	}
	return r.update(ctx, id, fields)
}

func (r *outboxRepository) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update outbox message: %w", err)
	}
	return nil
}
