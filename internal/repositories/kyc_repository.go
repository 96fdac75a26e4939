package repositories

import (
	"context"
	"errors"
	"fmt"

	"kudi/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KYCRepository interface {
	GetByUserID(ctx context.Context, userID uint) (*models.KYCProfile, error)
	GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.KYCProfile, error)
	Save(ctx context.Context, profile *models.KYCProfile) error
}

type kycRepository struct {
	db *gorm.DB
}

func NewKYCRepository(db *gorm.DB) KYCRepository {
	return &kycRepository{db: db}
}

func (r *kycRepository) GetByUserID(ctx context.Context, userID uint) (*models.KYCProfile, error) {
	return r.first(r.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (r *kycRepository) GetByUserIDForUpdate(ctx context.Context, userID uint) (*models.KYCProfile, error) {
	return r.first(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID))
}

func (r *kycRepository) first(q *gorm.DB) (*models.KYCProfile, error) {
	var p models.KYCProfile
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get kyc profile: %w", err)
	}
	return &p, nil
}

// Save inserts a new profile or updates every column of an existing one.
func (r *kycRepository) Save(ctx context.Context, profile *models.KYCProfile) error {
	if err := r.db.WithContext(ctx).Save(profile).Error; err != nil {
		return fmt.Errorf("failed to save kyc profile: %w", err)
	}
	return nil
}
