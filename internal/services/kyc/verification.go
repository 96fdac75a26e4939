package kyc

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"

	"go.uber.org/zap"
)

// VerificationResult is a vendor decision about one user.
type VerificationResult struct {
	UserID      uint   `json:"user_id"`
	Provider    string `json:"provider"`
	Code        string `json:"code"`
	Reference   string `json:"reference"`
	TargetLevel int    `json:"target_level"`
	Reason      string `json:"reason,omitempty"`
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	ExecuteInTransaction(ctx context.Context, fn func(tx *repositories.Store) error) error
}

// Verifier applies classified vendor results to profiles.
type Verifier struct {
	store          Transactor
	classification *Classification
	maxLevel       int
	logger         *zap.Logger
	now            func() time.Time
}

func NewVerifier(store Transactor, classification *Classification, table *Table, logger *zap.Logger) *Verifier {
	if classification == nil {
		classification = DefaultClassification()
	}
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	levels := table.Levels()
	return &Verifier{
		store:          store,
		classification: classification,
		maxLevel:       levels[len(levels)-1],
		logger:         logger,
		now:            time.Now,
	}
}

// ApplyResult classifies r and updates the profile. Approved raises the
// level to the target and never lowers it. Provisional and Rejected record
// the status without touching the level.
func (v *Verifier) ApplyResult(ctx context.Context, r VerificationResult) (*models.KYCProfile, Outcome, error) {
	if r.UserID == 0 {
		return nil, "", apperrors.ErrValidation.WithMessage("user id is required")
	}
	if r.TargetLevel < 0 || r.TargetLevel > v.maxLevel {
		return nil, "", apperrors.ErrValidation.WithMessage("target level must be between 0 and %d", v.maxLevel)
	}
	outcome := v.classification.Classify(r.Provider, r.Code)

	var profile *models.KYCProfile
	err := v.store.ExecuteInTransaction(ctx, func(tx *repositories.Store) error {
		p, err := tx.KYC.GetByUserIDForUpdate(ctx, r.UserID)
		if errors.Is(err, repositories.ErrNotFound) {
			p = &models.KYCProfile{UserID: r.UserID, Status: models.KYCStatusNone}
		} else if err != nil {
			return err
		}

		previous := p.Level
		p.Provider = r.Provider
		p.Reference = r.Reference
		p.LastCode = r.Code
		p.Reason = r.Reason
		p.TableVersion = v.classification.Version

		switch outcome {
		case OutcomeApproved:
			p.Status = models.KYCStatusApproved
			if r.TargetLevel > p.Level {
				p.Level = r.TargetLevel
			}
			now := v.now().UTC()
			p.VerifiedAt = &now
		case OutcomeProvisional:
			p.Status = models.KYCStatusProvisional
		default:
			p.Status = models.KYCStatusRejected
		}

		if err := tx.KYC.Save(ctx, p); err != nil {
			return err
		}
		if p.Level != previous {
			if err := tx.Outbox.Enqueue(ctx, models.TopicKYCLevelChanged, fmt.Sprint(p.UserID), models.JSON{
				"user_id":        p.UserID,
				"previous_level": previous,
				"level":          p.Level,
				"provider":       p.Provider,
			}); err != nil {
				return err
			}
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("apply verification result: %w", err)
	}

	v.logger.Info("kyc result applied",
		zap.Uint("user_id", r.UserID),
		zap.String("provider", r.Provider),
		zap.String("code", r.Code),
		zap.String("outcome", string(outcome)),
		zap.Int("level", profile.Level),
		zap.String("table_version", v.classification.Version))
	return profile, outcome, nil
}
