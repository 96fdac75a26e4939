// Package transaction drives a transaction through its lifecycle. Every
// transition is a status compare-and-set, the matching ledger mutation and
// an outbox event committed in one database transaction.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/metrics"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/ledger"

	"go.uber.org/zap"
)

type ProcessorConfig struct {
	Store   *repositories.Store
	Ledger  *ledger.Ledger
	Spend   SpendInvalidator
	Logger  *zap.Logger
	Metrics metrics.Collector
}

// Processor is the transaction state machine.
type Processor struct {
	store   *repositories.Store
	ledger  *ledger.Ledger
	spend   SpendInvalidator
	logger  *zap.Logger
	metrics metrics.Collector
	now     func() time.Time
}

func NewProcessor(config ProcessorConfig) *Processor {
	if config.Store == nil {
		panic("store is required")
	}
	if config.Ledger == nil {
		panic("ledger is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store:   config.Store,
		ledger:  config.Ledger,
		spend:   config.Spend,
		logger:  logger,
		metrics: metrics.OrNoop(config.Metrics),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Create persists txn in INITIATED.
func (p *Processor) Create(ctx context.Context, txn *models.Transaction) error {
	txn.Status = models.StatusInitiated
	if err := p.store.Transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, repositories.ErrDuplicateRequest) {
			existing, lookupErr := p.store.Transactions.GetByRequestID(ctx, txn.RequestID)
			details := map[string]interface{}{"request_id": txn.RequestID}
			if lookupErr == nil {
				details["transaction_id"] = existing.ID
				details["status"] = existing.Status
			}
			return apperrors.ErrDuplicateOrStalePending.
				WithMessage("request %s was already submitted", txn.RequestID).
				WithDetails(details)
		}
		return err
	}
	p.metrics.RecordTransition("", string(models.StatusInitiated))
	return nil
}

// Get loads a transaction by id.
func (p *Processor) Get(ctx context.Context, id string) (*models.Transaction, error) {
	txn, err := p.store.Transactions.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("transaction %s not found", id)
	}
	return txn, err
}

// Reserve moves INITIATED to PENDING_EXTERNAL and holds the amount. It runs
// before the provider is contacted, so a ledger rejection is returned as is.
func (p *Processor) Reserve(ctx context.Context, txn *models.Transaction) error {
	_, err := p.transition(ctx, txn, models.StatusPendingExternal, Update{})
	var ledgerErr *ledgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.err
	}
	return err
}

// MarkProcessing records that the provider acknowledged but has not settled.
func (p *Processor) MarkProcessing(ctx context.Context, txn *models.Transaction, upd Update) (bool, error) {
	return p.settle(ctx, txn, models.StatusProcessing, upd)
}

// Complete commits the reservation, or debits directly for synchronous
// providers.
func (p *Processor) Complete(ctx context.Context, txn *models.Transaction, upd Update) (bool, error) {
	return p.settle(ctx, txn, models.StatusCompleted, upd)
}

// Fail releases any reservation.
func (p *Processor) Fail(ctx context.Context, txn *models.Transaction, upd Update) (bool, error) {
	return p.settle(ctx, txn, models.StatusFailed, upd)
}

// Refund credits a completed transaction back to the user.
func (p *Processor) Refund(ctx context.Context, txn *models.Transaction, upd Update) (bool, error) {
	return p.settle(ctx, txn, models.StatusRefunded, upd)
}

// settle runs a transition that follows a provider outcome. A ledger
// failure at this point cannot be rolled back at the provider, so the
// transaction is flagged for manual reconciliation.
func (p *Processor) settle(ctx context.Context, txn *models.Transaction, to models.TransactionStatus, upd Update) (bool, error) {
	won, err := p.transition(ctx, txn, to, upd)
	if err == nil || errors.Is(err, ErrInvalidTransition) {
		return won, err
	}
	var ledgerErr *ledgerError
	if !errors.As(err, &ledgerErr) {
		return false, err
	}
	if upd.Internal && !txn.Status.Terminal() {
		return false, p.failInternal(ctx, txn, to, ledgerErr.err)
	}
	return false, p.flagReconciliation(ctx, txn, to, upd, ledgerErr.err)
}

// failInternal closes a transaction whose ledger-only settlement was
// rejected, typically because the balance moved since it was checked.
func (p *Processor) failInternal(ctx context.Context, txn *models.Transaction, target models.TransactionStatus, cause error) error {
	p.logger.Warn("internal settlement rejected by ledger",
		zap.String("transaction_id", txn.ID),
		zap.String("target", string(target)),
		zap.Error(cause))
	reason := fmt.Sprintf("ledger rejected %s: %v", target, cause)
	if _, err := p.transition(ctx, txn, models.StatusFailed, Update{Reason: reason}); err != nil {
		return err
	}
	return cause
}

type ledgerError struct{ err error }

func (e *ledgerError) Error() string { return e.err.Error() }
func (e *ledgerError) Unwrap() error { return e.err }

// transition applies one state change. It reports false without error when
// another writer moved the transaction first; txn is then reloaded.
func (p *Processor) transition(ctx context.Context, txn *models.Transaction, to models.TransactionStatus, upd Update) (bool, error) {
	from := txn.Status
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	effect, err := ledgerEffect(txn, from, to)
	if err != nil {
		return false, err
	}

	now := p.now().UTC()
	fields := map[string]interface{}{}
	if upd.ProviderRef != "" {
		fields["provider_ref"] = upd.ProviderRef
	}
	if upd.ProviderTxID != "" {
		fields["provider_tx_id"] = upd.ProviderTxID
	}
	if upd.Webhook {
		fields["webhook_processed_at"] = now
	}
	if to == models.StatusCompleted {
		fields["completed_at"] = now
	}
	var errs models.StringList
	if upd.Reason != "" {
		errs = append(append(models.StringList{}, txn.ProcessingErrors...), fmt.Sprintf("%s: %s", now.Format(time.RFC3339), upd.Reason))
		fields["processing_errors"] = errs
	}

	start := time.Now()
	won := false
	err = p.store.ExecuteInTransaction(ctx, func(tx *repositories.Store) error {
		ok, err := tx.Transactions.CompareAndSetStatus(ctx, txn.ID, repositories.StatusChange{
			From:        []models.TransactionStatus{from},
			To:          to,
			Unprocessed: upd.Webhook && !from.Terminal(),
			Fields:      fields,
		})
		if err != nil || !ok {
			return err
		}
		if effect != nil {
			if err := effect(ctx, p.ledger.WithRepository(tx.Balances)); err != nil {
				return &ledgerError{err: err}
			}
		}
		if topic, ok := topicFor(to); ok {
			if err := tx.Outbox.Enqueue(ctx, topic, txn.ID, eventPayload(txn, to)); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	p.metrics.RecordOperationDuration("transition_"+string(to), time.Since(start))
	if err != nil {
		p.metrics.RecordError("transition", string(to))
		return false, err
	}

	if !won {
		p.logger.Info("transition lost compare-and-set",
			zap.String("transaction_id", txn.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		if fresh, err := p.store.Transactions.GetByID(ctx, txn.ID); err == nil {
			*txn = *fresh
		}
		return false, nil
	}

	txn.Status = to
	if upd.ProviderRef != "" {
		txn.ProviderRef = upd.ProviderRef
	}
	if upd.ProviderTxID != "" {
		txn.ProviderTxID = upd.ProviderTxID
	}
	if upd.Webhook {
		txn.WebhookProcessedAt = &now
	}
	if to == models.StatusCompleted {
		txn.CompletedAt = &now
	}
	if errs != nil {
		txn.ProcessingErrors = errs
	}

	p.metrics.RecordTransition(string(from), string(to))
	if to == models.StatusCompleted {
		p.metrics.RecordTransactionVolume(string(txn.Category), string(txn.Asset), txn.Amount.InexactFloat64())
	}
	p.logger.Info("transaction transitioned",
		zap.String("transaction_id", txn.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Bool("webhook", upd.Webhook))

	if to == models.StatusCompleted || to == models.StatusRefunded {
		p.invalidateSpend(ctx, txn)
	}
	return true, nil
}

type ledgerOp func(ctx context.Context, l *ledger.Ledger) error

// ledgerEffect returns the balance mutation paired with from -> to.
func ledgerEffect(txn *models.Transaction, from, to models.TransactionStatus) (ledgerOp, error) {
	user, asset, amount := txn.UserID, txn.Asset, txn.Amount

	switch {
	case to == models.StatusPendingExternal:
		return func(ctx context.Context, l *ledger.Ledger) error {
			return l.Reserve(ctx, user, asset, amount)
		}, nil

	case to == models.StatusCompleted && from == models.StatusInitiated:
		if txn.Mode != models.ModeDirect {
			return nil, fmt.Errorf("%w: %s transaction cannot complete before reserving", ErrInvalidTransition, txn.Mode)
		}
		if txn.Type == models.TransactionTypeTransfer && txn.CounterpartyID == nil {
			return nil, ErrNoCounterparty
		}
		return func(ctx context.Context, l *ledger.Ledger) error {
			if err := l.DebitDirect(ctx, user, asset, amount); err != nil {
				return err
			}
			if txn.CounterpartyID != nil {
				return l.Credit(ctx, *txn.CounterpartyID, asset, amount)
			}
			return nil
		}, nil

	case to == models.StatusCompleted:
		return func(ctx context.Context, l *ledger.Ledger) error {
			return l.Commit(ctx, user, asset, amount)
		}, nil

	case to == models.StatusFailed && from.InFlight():
		return func(ctx context.Context, l *ledger.Ledger) error {
			return l.Release(ctx, user, asset, amount)
		}, nil

	case to == models.StatusRefunded:
		return func(ctx context.Context, l *ledger.Ledger) error {
			if txn.CounterpartyID != nil {
				if err := l.DebitDirect(ctx, *txn.CounterpartyID, asset, amount); err != nil {
					return err
				}
			}
			return l.Credit(ctx, user, asset, amount)
		}, nil
	}
	return nil, nil
}

func topicFor(to models.TransactionStatus) (string, bool) {
	switch to {
	case models.StatusCompleted:
		return models.TopicTransactionCompleted, true
	case models.StatusFailed:
		return models.TopicTransactionFailed, true
	case models.StatusRefunded:
		return models.TopicTransactionRefunded, true
	}
	return "", false
}

func eventPayload(txn *models.Transaction, status models.TransactionStatus) models.JSON {
	return models.JSON{
		"transaction_id": txn.ID,
		"request_id":     txn.RequestID,
		"user_id":        txn.UserID,
		"type":           txn.Type,
		"category":       txn.Category,
		"asset":          txn.Asset,
		"amount":         txn.Amount.String(),
		"status":         status,
		"provider":       txn.Provider,
	}
}

func (p *Processor) invalidateSpend(ctx context.Context, txn *models.Transaction) {
	if p.spend == nil {
		return
	}
	if err := p.spend.Invalidate(ctx, txn.UserID, txn.Category); err != nil {
		p.logger.Warn("spend cache invalidation failed",
			zap.Uint("user_id", txn.UserID),
			zap.String("category", string(txn.Category)),
			zap.Error(err))
	}
}

// flagReconciliation records a ledger failure that followed a provider
// outcome. A non-terminal transaction is moved to FAILED without touching
// balances; a terminal one keeps its status. Either way it is flagged and an
// event is queued for operators.
func (p *Processor) flagReconciliation(ctx context.Context, txn *models.Transaction, target models.TransactionStatus, upd Update, cause error) error {
	msg := fmt.Sprintf("ledger update for %s failed: %v", target, cause)
	p.logger.Error("ledger update failed after provider outcome",
		zap.String("transaction_id", txn.ID),
		zap.Uint("user_id", txn.UserID),
		zap.String("status", string(txn.Status)),
		zap.String("target", string(target)),
		zap.String("asset", string(txn.Asset)),
		zap.String("amount", txn.Amount.String()),
		zap.Bool("manual_reconciliation", true),
		zap.Error(cause))
	p.metrics.RecordReconciliationFlag("ledger_failure")

	err := p.store.ExecuteInTransaction(ctx, func(tx *repositories.Store) error {
		current, err := tx.Transactions.GetByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return err
		}
		if !current.Status.Terminal() {
			if _, err := tx.Transactions.CompareAndSetStatus(ctx, txn.ID, repositories.StatusChange{
				From: []models.TransactionStatus{current.Status},
				To:   models.StatusFailed,
			}); err != nil {
				return err
			}
			current.Status = models.StatusFailed
		}
		if err := tx.Transactions.AppendProcessingError(ctx, txn.ID, msg, true); err != nil {
			return err
		}
		if upd.Webhook {
			if err := tx.Transactions.UpdateFields(ctx, txn.ID, map[string]interface{}{"webhook_processed_at": p.now().UTC()}); err != nil {
				return err
			}
		}
		return tx.Outbox.Enqueue(ctx, models.TopicReconciliationRequired, txn.ID, eventPayload(current, current.Status))
	})
	if err != nil {
		p.logger.Error("failed to flag transaction for reconciliation",
			zap.String("transaction_id", txn.ID),
			zap.Bool("manual_reconciliation", true),
			zap.Error(err))
	}
	if fresh, getErr := p.store.Transactions.GetByID(ctx, txn.ID); getErr == nil {
		*txn = *fresh
	}
	return apperrors.ErrReconciliationRequired.
		WithDetails(map[string]interface{}{"transaction_id": txn.ID}).
		Wrap(cause)
}

// RecordConflict flags a provider outcome that contradicts a terminal
// status. No balance moves.
func (p *Processor) RecordConflict(ctx context.Context, txn *models.Transaction, reported string, webhook bool) error {
	msg := fmt.Sprintf("provider reported %s for %s transaction", reported, txn.Status)
	p.logger.Warn("provider outcome conflicts with transaction status",
		zap.String("transaction_id", txn.ID),
		zap.String("status", string(txn.Status)),
		zap.String("reported", reported),
		zap.Bool("manual_reconciliation", true))
	p.metrics.RecordReconciliationFlag("outcome_conflict")

	now := p.now().UTC()
	err := p.store.ExecuteInTransaction(ctx, func(tx *repositories.Store) error {
		if err := tx.Transactions.AppendProcessingError(ctx, txn.ID, msg, true); err != nil {
			return err
		}
		if webhook {
			if err := tx.Transactions.UpdateFields(ctx, txn.ID, map[string]interface{}{"webhook_processed_at": now}); err != nil {
				return err
			}
		}
		return tx.Outbox.Enqueue(ctx, models.TopicReconciliationRequired, txn.ID, eventPayload(txn, txn.Status))
	})
	if err != nil {
		return fmt.Errorf("record outcome conflict: %w", err)
	}
	txn.NeedsReconciliation = true
	if webhook {
		txn.WebhookProcessedAt = &now
	}
	return nil
}

// MarkWebhookProcessed stamps a notification that needed no transition.
func (p *Processor) MarkWebhookProcessed(ctx context.Context, txn *models.Transaction) error {
	now := p.now().UTC()
	if err := p.store.Transactions.UpdateFields(ctx, txn.ID, map[string]interface{}{"webhook_processed_at": now}); err != nil {
		return err
	}
	txn.WebhookProcessedAt = &now
	return nil
}

// RecordProviderRefs stores identifiers returned by a provider that accepted
// an order without settling it.
func (p *Processor) RecordProviderRefs(ctx context.Context, txn *models.Transaction, ref, txID string) error {
	fields := map[string]interface{}{}
	if ref != "" {
		fields["provider_ref"] = ref
	}
	if txID != "" {
		fields["provider_tx_id"] = txID
	}
	if len(fields) == 0 {
		return nil
	}
	if err := p.store.Transactions.UpdateFields(ctx, txn.ID, fields); err != nil {
		return err
	}
	if ref != "" {
		txn.ProviderRef = ref
	}
	if txID != "" {
		txn.ProviderTxID = txID
	}
	return nil
}
