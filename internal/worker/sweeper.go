package worker

import (
	"context"
	"time"

	"kudi/internal/services/transaction"

	"go.uber.org/zap"
)

// SweepRunner performs one sweep pass.
type SweepRunner interface {
	Sweep(ctx context.Context) (transaction.SweepReport, error)
}

// Sweeper runs a SweepRunner on an interval.
type Sweeper struct {
	sweeper  SweepRunner
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewSweeper(sweeper SweepRunner, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("starting sweep worker", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.sweeper.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		case <-s.stopChan:
			s.logger.Info("stopping sweep worker")
			return
		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping sweep worker")
			return
		}
	}
}

func (s *Sweeper) Stop() {
	close(s.stopChan)
}
