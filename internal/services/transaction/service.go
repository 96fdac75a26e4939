package transaction

import (
	"context"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GetForUser loads a transaction owned by userID. Someone else's
// transaction is reported as not found.
func (p *Processor) GetForUser(ctx context.Context, userID uint, id string) (*models.Transaction, error) {
	txn, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, apperrors.ErrNotFound.WithMessage("transaction %s not found", id)
	}
	return txn, nil
}

// History pages through a user's transactions, newest first.
func (p *Processor) History(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error) {
	limit, offset = clampPage(limit, offset)
	return p.store.Transactions.ListByUser(ctx, userID, limit, offset)
}

// Flagged pages through transactions awaiting manual reconciliation.
func (p *Processor) Flagged(ctx context.Context, limit, offset int) ([]models.Transaction, int64, error) {
	limit, offset = clampPage(limit, offset)
	return p.store.Transactions.ListNeedingReconciliation(ctx, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
