// Package worker runs the background loops: outbox delivery and the stale
// transaction sweeper.
package worker

import (
	"context"
	"time"

	"kudi/internal/metrics"
	"kudi/internal/repositories"
	"kudi/internal/services/notification"

	"go.uber.org/zap"
)

type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts after which a message is parked as dead.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// OutboxDispatcher publishes queued events. A failed publish is retried with
// exponential backoff; it never affects the transaction that queued it.
type OutboxDispatcher struct {
	outbox    repositories.OutboxRepository
	publisher notification.Publisher
	cfg       DispatcherConfig
	logger    *zap.Logger
	metrics   metrics.Collector
	now       func() time.Time
	stopChan  chan struct{}
}

func NewOutboxDispatcher(outbox repositories.OutboxRepository, publisher notification.Publisher, cfg DispatcherConfig, logger *zap.Logger, collector metrics.Collector) *OutboxDispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxDispatcher{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("outbox"),
		metrics:   metrics.OrNoop(collector),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

func (d *OutboxDispatcher) Start(ctx context.Context) {
	d.logger.Info("starting outbox dispatcher", zap.Duration("interval", d.cfg.PollInterval))
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("outbox dispatch failed", zap.Error(err))
			}
		case <-d.stopChan:
			d.logger.Info("stopping outbox dispatcher")
			return
		case <-ctx.Done():
			d.logger.Info("context cancelled, stopping outbox dispatcher")
			return
		}
	}
}

func (d *OutboxDispatcher) Stop() {
	close(d.stopChan)
}

// DispatchOnce publishes one batch of due messages and reports how many
// were delivered.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.outbox.FetchDue(ctx, d.now(), d.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, notification.FromOutbox(msg)); err != nil {
			d.metrics.RecordOperationResult("outbox_publish", "error")
			attempts := msg.Attempts + 1
			var next time.Time
			if attempts < d.cfg.MaxAttempts {
				next = d.now().Add(d.backoff(attempts))
			}
			if next.IsZero() {
				d.logger.Error("outbox message dead after max attempts",
					zap.Uint("id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Int("attempts", attempts),
					zap.Error(err))
			} else {
				d.logger.Warn("outbox publish failed",
					zap.Uint("id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Int("attempts", attempts),
					zap.Time("next_attempt_at", next),
					zap.Error(err))
			}
			if markErr := d.outbox.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := d.outbox.MarkPublished(ctx, msg.ID, d.now()); err != nil {
			// the message will be delivered again; subscribers dedupe on id
			return published, err
		}
		d.metrics.RecordOperationResult("outbox_publish", "ok")
		published++
	}
	return published, nil
}

func (d *OutboxDispatcher) backoff(attempts int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}
