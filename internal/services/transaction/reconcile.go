package transaction

import (
	"context"
	"errors"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/settlement"

	"go.uber.org/zap"
)

// Locate finds the transaction a notification refers to, trying the request
// id, then the provider order id, then the provider transaction id.
func (p *Processor) Locate(ctx context.Context, n *settlement.Notification) (*models.Transaction, error) {
	lookups := []func() (*models.Transaction, error){
		func() (*models.Transaction, error) {
			if n.RequestID == "" {
				return nil, repositories.ErrNotFound
			}
			txn, err := p.store.Transactions.GetByRequestID(ctx, n.RequestID)
			if err == nil && txn.Provider != n.Provider {
				return nil, repositories.ErrNotFound
			}
			return txn, err
		},
		func() (*models.Transaction, error) {
			return p.store.Transactions.GetByProviderRef(ctx, n.Provider, n.OrderID)
		},
		func() (*models.Transaction, error) {
			return p.store.Transactions.GetByProviderTxID(ctx, n.Provider, n.ProviderTxID)
		},
	}
	for _, lookup := range lookups {
		txn, err := lookup()
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
	}
	return nil, repositories.ErrNotFound
}

// HandleNotification applies a verified provider webhook. Unknown
// transactions and repeats are acknowledged without changes.
func (p *Processor) HandleNotification(ctx context.Context, n *settlement.Notification) (*WebhookResult, error) {
	log := p.logger.With(
		zap.String("provider", n.Provider),
		zap.String("request_id", n.RequestID),
		zap.String("order_id", n.OrderID),
		zap.String("provider_tx_id", n.ProviderTxID),
		zap.String("provider_status", n.Status))

	txn, err := p.Locate(ctx, n)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Warn("webhook for unknown transaction")
		return &WebhookResult{Action: ActionIgnored}, nil
	}
	if err != nil {
		return nil, err
	}
	if txn.WebhookProcessedAt != nil && !reverses(txn.Status, n.Outcome) {
		log.Info("webhook already processed", zap.String("transaction_id", txn.ID))
		return &WebhookResult{TransactionID: txn.ID, Action: ActionNoop, Status: txn.Status}, nil
	}

	action, err := p.ApplyOutcome(ctx, txn, n.Outcome, Update{
		ProviderRef:  n.OrderID,
		ProviderTxID: n.ProviderTxID,
		Reason:       reasonFor(n.Outcome, n.Status),
		Webhook:      true,
	})
	if errors.Is(err, apperrors.ErrReconciliationRequired) {
		return &WebhookResult{TransactionID: txn.ID, Action: ActionFlagged, Status: txn.Status}, nil
	}
	if err != nil {
		return nil, err
	}
	return &WebhookResult{TransactionID: txn.ID, Action: action, Status: txn.Status}, nil
}

// reverses reports whether outcome undoes a settled status. A refund can
// follow the webhook that completed the transaction.
func reverses(status models.TransactionStatus, outcome settlement.Outcome) bool {
	return status == models.StatusCompleted && outcome == settlement.OutcomeRefunded
}

func reasonFor(outcome settlement.Outcome, status string) string {
	if outcome == settlement.OutcomeFailed || outcome == settlement.OutcomeRefunded {
		return "provider reported " + status
	}
	return ""
}

// ApplyOutcome moves txn according to a provider outcome. An outcome that
// contradicts a terminal status moves no funds and flags the transaction.
func (p *Processor) ApplyOutcome(ctx context.Context, txn *models.Transaction, outcome settlement.Outcome, upd Update) (Action, error) {
	switch outcome {
	case settlement.OutcomeCompleted:
		switch {
		case txn.Status.InFlight():
			return p.applied(p.Complete(ctx, txn, upd))
		case txn.Status == models.StatusCompleted:
			return p.alreadySettled(ctx, txn, upd)
		}

	case settlement.OutcomeFailed:
		switch {
		case txn.Status.InFlight():
			return p.applied(p.Fail(ctx, txn, upd))
		case txn.Status == models.StatusFailed:
			return p.alreadySettled(ctx, txn, upd)
		}

	case settlement.OutcomeRefunded:
		switch {
		case txn.Status == models.StatusCompleted:
			return p.applied(p.Refund(ctx, txn, upd))
		case txn.Status.InFlight():
			// reversed before delivery: nothing left the wallet
			return p.applied(p.Fail(ctx, txn, upd))
		case txn.Status == models.StatusRefunded:
			return p.alreadySettled(ctx, txn, upd)
		}

	default:
		if txn.Status == models.StatusPendingExternal {
			upd.Webhook = false
			return p.applied(p.MarkProcessing(ctx, txn, upd))
		}
		return ActionNoop, nil
	}

	if txn.Status == models.StatusInitiated {
		// the submit call has not returned yet; its result settles this
		return ActionNoop, nil
	}
	if err := p.RecordConflict(ctx, txn, string(outcome), upd.Webhook); err != nil {
		return "", err
	}
	return ActionConflict, nil
}

func (p *Processor) applied(won bool, err error) (Action, error) {
	if err != nil {
		return "", err
	}
	if !won {
		return ActionNoop, nil
	}
	return ActionApplied, nil
}

func (p *Processor) alreadySettled(ctx context.Context, txn *models.Transaction, upd Update) (Action, error) {
	if upd.Webhook {
		if err := p.MarkWebhookProcessed(ctx, txn); err != nil {
			return "", err
		}
	}
	return ActionNoop, nil
}
