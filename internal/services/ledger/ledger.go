// Package ledger applies the balance primitives with domain validation.
//
// Every operation is a single guarded UPDATE executed by the repository.
// There is no read-then-write: concurrent reservations against the same
// balance are serialised by the database and the loser sees
// InsufficientBalance. Idempotency of Release and Commit is the caller's
// concern and is provided by the transaction state machine, which only
// invokes them after winning a status compare-and-set.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/metrics"
	"kudi/internal/models"
	"kudi/internal/repositories"

	"github.com/shopspring/decimal"
)

// ErrPendingMismatch means a settlement tried to move more than is pending.
// It indicates a ledger inconsistency and is never expected in normal flow.
var ErrPendingMismatch = errors.New("pending balance lower than settlement amount")

type Ledger struct {
	balances repositories.BalanceRepository
	metrics  metrics.Collector
}

func New(balances repositories.BalanceRepository, collector metrics.Collector) *Ledger {
	return &Ledger{
		balances: balances,
		metrics:  metrics.OrNoop(collector),
	}
}

// WithRepository returns a Ledger bound to another repository, typically
// one scoped to a database transaction.
func (l *Ledger) WithRepository(balances repositories.BalanceRepository) *Ledger {
	return &Ledger{balances: balances, metrics: l.metrics}
}

func (l *Ledger) Reserve(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return l.run(ctx, "reserve", userID, asset, amount, l.balances.Reserve, l.insufficient)
}

func (l *Ledger) Commit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return l.run(ctx, "commit", userID, asset, amount, l.balances.Commit, l.pendingMismatch)
}

func (l *Ledger) Release(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return l.run(ctx, "release", userID, asset, amount, l.balances.Release, l.pendingMismatch)
}

func (l *Ledger) DebitDirect(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return l.run(ctx, "debit_direct", userID, asset, amount, l.balances.DebitDirect, l.insufficient)
}

func (l *Ledger) Credit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return l.run(ctx, "credit", userID, asset, amount, l.balances.Credit, nil)
}

// Balances returns every balance row the user holds.
func (l *Ledger) Balances(ctx context.Context, userID uint) ([]models.Balance, error) {
	return l.balances.ListByUser(ctx, userID)
}

// Balance returns one balance, or a zero balance when the row does not exist.
func (l *Ledger) Balance(ctx context.Context, userID uint, asset models.Asset) (*models.Balance, error) {
	if !asset.Valid() {
		return nil, apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", asset)
	}
	b, err := l.balances.Get(ctx, userID, asset)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.Balance{UserID: userID, Asset: asset}, nil
	}
	return b, err
}

type mutation func(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error

type rejection func(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error

func (l *Ledger) run(ctx context.Context, op string, userID uint, asset models.Asset, amount decimal.Decimal, fn mutation, onReject rejection) error {
	start := time.Now()
	defer func() { l.metrics.RecordOperationDuration(op, time.Since(start)) }()

	if !asset.Valid() {
		l.metrics.RecordError(op, "unsupported_currency")
		return apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", asset)
	}
	if !amount.IsPositive() {
		l.metrics.RecordError(op, "invalid_amount")
		return apperrors.ErrValidation.WithMessage("amount must be greater than zero")
	}

	err := fn(ctx, userID, asset, amount)
	switch {
	case err == nil:
		l.metrics.RecordOperationResult(op, "ok")
		return nil
	case errors.Is(err, repositories.ErrConditionFailed) && onReject != nil:
		l.metrics.RecordOperationResult(op, "rejected")
		return onReject(ctx, userID, asset, amount)
	default:
		l.metrics.RecordError(op, "storage")
		return fmt.Errorf("%s %s for user %d: %w", op, asset, userID, err)
	}
}

func (l *Ledger) insufficient(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	available := decimal.Zero
	if b, err := l.balances.Get(ctx, userID, asset); err == nil {
		available = b.Available
	}
	return apperrors.ErrInsufficientBalance.WithDetails(map[string]interface{}{
		"asset":     asset,
		"requested": amount.String(),
		"available": available.String(),
	})
}

func (l *Ledger) pendingMismatch(_ context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return fmt.Errorf("%w: user %d %s %s", ErrPendingMismatch, userID, amount.String(), asset)
}
