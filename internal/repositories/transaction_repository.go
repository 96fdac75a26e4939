package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetTotal is the absolute spend of one asset inside a window.
type AssetTotal struct {
	Asset models.Asset
	Total decimal.Decimal
}

// SimilarQuery describes an in-flight transaction that a new request would
// duplicate.
type SimilarQuery struct {
	UserID      uint
	Type        models.TransactionType
	Asset       models.Asset
	Destination string
	Amount      decimal.Decimal
	Since       time.Time
}

// StatusChange is a compare-and-set on a transaction's status.
type StatusChange struct {
	From []models.TransactionStatus
	To   models.TransactionStatus
	// Unprocessed additionally requires webhook_processed_at IS NULL.
	Unprocessed bool
	// Fields are extra columns to set alongside status.
	Fields map[string]interface{}
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error)
	GetByRequestID(ctx context.Context, requestID string) (*models.Transaction, error)
	GetByProviderRef(ctx context.Context, provider, ref string) (*models.Transaction, error)
	GetByProviderTxID(ctx context.Context, provider, txID string) (*models.Transaction, error)
	FindSimilarInFlight(ctx context.Context, q SimilarQuery) (*models.Transaction, error)

	// CompareAndSetStatus applies change and reports whether this caller won.
	CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (bool, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	// AppendProcessingError records msg and optionally flags the row for
	// manual reconciliation.
	AppendProcessingError(ctx context.Context, id, msg string, flag bool) error

	ListStale(ctx context.Context, statuses []models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error)
	ListNeedingReconciliation(ctx context.Context, limit, offset int) ([]models.Transaction, int64, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error)
	SumCompletedByAsset(ctx context.Context, userID uint, category models.LimitCategory, since time.Time) ([]AssetTotal, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if existing, err := r.GetByRequestID(ctx, txn.RequestID); err == nil && existing != nil {
		return ErrDuplicateRequest
	}
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		// a concurrent insert with the same request id lost the unique index race
		if existing, lookupErr := r.GetByRequestID(ctx, txn.RequestID); lookupErr == nil && existing != nil {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *transactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *transactionRepository) GetByRequestID(ctx context.Context, requestID string) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).Where("request_id = ?", requestID))
}

func (r *transactionRepository) GetByProviderRef(ctx context.Context, provider, ref string) (*models.Transaction, error) {
	if ref == "" {
		return nil, ErrNotFound
	}
	return r.first(r.db.WithContext(ctx).Where("provider = ? AND provider_ref = ?", provider, ref))
}

func (r *transactionRepository) GetByProviderTxID(ctx context.Context, provider, txID string) (*models.Transaction, error) {
	if txID == "" {
		return nil, ErrNotFound
	}
	return r.first(r.db.WithContext(ctx).Where("provider = ? AND provider_tx_id = ?", provider, txID))
}

func (r *transactionRepository) FindSimilarInFlight(ctx context.Context, q SimilarQuery) (*models.Transaction, error) {
	return r.first(r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND asset = ? AND destination = ? AND amount = ?",
			q.UserID, q.Type, q.Asset, q.Destination, q.Amount).
		Where("status IN ?", []models.TransactionStatus{
			models.StatusInitiated, models.StatusPendingExternal, models.StatusProcessing,
		}).
		Where("created_at >= ?", q.Since.UTC()).
		Order("created_at DESC"))
}

func (r *transactionRepository) first(q *gorm.DB) (*models.Transaction, error) {
	var txn models.Transaction
	if err := q.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

func (r *transactionRepository) CompareAndSetStatus(ctx context.Context, id string, change StatusChange) (bool, error) {
	updates := map[string]interface{}{"status": change.To}
	for k, v := range change.Fields {
		updates[k] = v
	}

	q := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, change.From)
	if change.Unprocessed {
		q = q.Where("webhook_processed_at IS NULL")
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update transaction status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *transactionRepository) AppendProcessingError(ctx context.Context, id, msg string, flag bool) error {
	txn, err := r.GetByIDForUpdate(ctx, id)
	if err != nil {
		return err
	}
	errs := append(models.StringList{}, txn.ProcessingErrors...)
	errs = append(errs, fmt.Sprintf("%s: %s", time.Now().UTC().Format(time.RFC3339), msg))

	fields := map[string]interface{}{"processing_errors": errs}
	if flag {
		fields["needs_reconciliation"] = true
	}
	return r.UpdateFields(ctx, id, fields)
}

func (r *transactionRepository) ListStale(ctx context.Context, statuses []models.TransactionStatus, olderThan time.Time, limit int) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, olderThan.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale transactions: %w", err)
	}
	return out, nil
}

func (r *transactionRepository) ListNeedingReconciliation(ctx context.Context, limit, offset int) ([]models.Transaction, int64, error) {
	return r.page(r.db.WithContext(ctx).Model(&models.Transaction{}).Where("needs_reconciliation = ?", true), limit, offset)
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error) {
	return r.page(r.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID), limit, offset)
}

func (r *transactionRepository) page(q *gorm.DB, limit, offset int) ([]models.Transaction, int64, error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	var out []models.Transaction
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return out, total, nil
}

func (r *transactionRepository) SumCompletedByAsset(ctx context.Context, userID uint, category models.LimitCategory, since time.Time) ([]AssetTotal, error) {
	var rows []AssetTotal
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("asset, COALESCE(SUM(ABS(amount)), 0) AS total").
		Where("user_id = ? AND category = ? AND status = ? AND completed_at >= ?",
			userID, category, models.StatusCompleted, since.UTC()).
		Group("asset").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum completed transactions: %w", err)
	}
	return rows, nil
}
