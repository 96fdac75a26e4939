package repositories

import (
	"context"
	"errors"
	"fmt"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceRepository performs the ledger primitives. Each mutation is one
// guarded UPDATE; ErrConditionFailed is the only rejection path.
type BalanceRepository interface {
	Get(ctx context.Context, userID uint, asset models.Asset) (*models.Balance, error)
	ListByUser(ctx context.Context, userID uint) ([]models.Balance, error)

	// Reserve moves amount from available to pending.
	Reserve(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
	// Commit removes amount from pending after the provider confirmed.
	Commit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
	// Release moves amount from pending back to available.
	Release(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
	// DebitDirect removes amount from available without a reservation.
	DebitDirect(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
	// Credit adds amount to available, creating the row if needed.
	Credit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
}

type balanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) Get(ctx context.Context, userID uint, asset models.Asset) (*models.Balance, error) {
	var b models.Balance
	err := r.db.WithContext(ctx).Where("user_id = ? AND asset = ?", userID, asset).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (r *balanceRepository) ListByUser(ctx context.Context, userID uint) ([]models.Balance, error) {
	var out []models.Balance
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("asset").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return out, nil
}

func (r *balanceRepository) Reserve(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return r.guardedUpdate(ctx, userID, asset, "available >= ?", amount, map[string]interface{}{
		"available": gorm.Expr("available - ?", amount),
		"pending":   gorm.Expr("pending + ?", amount),
	})
}

func (r *balanceRepository) Commit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return r.guardedUpdate(ctx, userID, asset, "pending >= ?", amount, map[string]interface{}{
		"pending": gorm.Expr("pending - ?", amount),
	})
}

func (r *balanceRepository) Release(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return r.guardedUpdate(ctx, userID, asset, "pending >= ?", amount, map[string]interface{}{
		"available": gorm.Expr("available + ?", amount),
		"pending":   gorm.Expr("pending - ?", amount),
	})
}

func (r *balanceRepository) DebitDirect(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return r.guardedUpdate(ctx, userID, asset, "available >= ?", amount, map[string]interface{}{
		"available": gorm.Expr("available - ?", amount),
	})
}

func (r *balanceRepository) Credit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	row := models.Balance{UserID: userID, Asset: asset}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to ensure balance row: %w", err)
	}
	return r.guardedUpdate(ctx, userID, asset, "", nil, map[string]interface{}{
		"available": gorm.Expr("available + ?", amount),
	})
}

func (r *balanceRepository) guardedUpdate(ctx context.Context, userID uint, asset models.Asset, guard string, guardArg interface{}, updates map[string]interface{}) error {
	q := r.db.WithContext(ctx).
		Model(&models.Balance{}).
		Where("user_id = ? AND asset = ?", userID, asset)
	if guard != "" {
		q = q.Where(guard, guardArg)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}
