package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/services/settlement"

	"go.uber.org/zap"
)

const (
	DefaultSweepMaxAge    = 30 * time.Minute
	DefaultSweepBatchSize = 100
)

type SweeperConfig struct {
	MaxAge    time.Duration
	BatchSize int
}

// Sweeper settles transactions that have waited too long for a provider
// outcome. Each one is queried at its provider; a final answer is applied,
// anything else fails the transaction and releases the hold.
type Sweeper struct {
	processor *Processor
	adapters  AdapterSource
	cfg       SweeperConfig
	logger    *zap.Logger
}

func NewSweeper(processor *Processor, adapters AdapterSource, cfg SweeperConfig) *Sweeper {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultSweepMaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	return &Sweeper{
		processor: processor,
		adapters:  adapters,
		cfg:       cfg,
		logger:    processor.logger.Named("sweeper"),
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	var report SweepReport

	cutoff := s.processor.now().Add(-s.cfg.MaxAge)
	stale, err := s.processor.store.Transactions.ListStale(ctx,
		[]models.TransactionStatus{models.StatusPendingExternal, models.StatusProcessing},
		cutoff, s.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		txn := &stale[i]
		report.Scanned++

		status, err := s.resolve(ctx, txn)
		switch {
		case err != nil && !errors.Is(err, apperrors.ErrReconciliationRequired):
			report.Errors++
			s.logger.Error("sweep failed for transaction",
				zap.String("transaction_id", txn.ID),
				zap.Error(err))
		case status == models.StatusCompleted:
			report.Completed++
		case status == models.StatusRefunded:
			report.Refunded++
		case status == models.StatusFailed:
			report.Failed++
		}
	}

	report.Elapsed = time.Since(start)
	if report.Scanned > 0 {
		s.logger.Info("sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("completed", report.Completed),
			zap.Int("failed", report.Failed),
			zap.Int("refunded", report.Refunded),
			zap.Int("errors", report.Errors),
			zap.Duration("elapsed", report.Elapsed))
	}
	return report, nil
}

func (s *Sweeper) resolve(ctx context.Context, txn *models.Transaction) (models.TransactionStatus, error) {
	result, err := s.query(ctx, txn)
	if err == nil && result.Outcome.Final() {
		_, err := s.processor.ApplyOutcome(ctx, txn, result.Outcome, Update{
			ProviderRef:  result.ProviderRef,
			ProviderTxID: result.ProviderTxID,
			Reason:       reasonFor(result.Outcome, result.Status),
		})
		return txn.Status, err
	}

	reason := fmt.Sprintf("no final provider status after %s", s.cfg.MaxAge)
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}
	s.logger.Warn("failing stale transaction",
		zap.String("transaction_id", txn.ID),
		zap.String("provider", txn.Provider),
		zap.String("reason", reason))
	_, err = s.processor.Fail(ctx, txn, Update{Reason: reason})
	return txn.Status, err
}

func (s *Sweeper) query(ctx context.Context, txn *models.Transaction) (*settlement.Result, error) {
	adapter, err := s.adapters.Get(txn.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.QueryStatus(ctx, settlement.Ref{RequestID: txn.RequestID, ProviderRef: txn.ProviderRef})
}
