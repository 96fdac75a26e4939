// Package kyc gates spending by verification level and applies vendor
// verification results to user profiles.
package kyc

import (
	"context"
	"errors"
	"fmt"

	apperrors "kudi/internal/errors"
	"kudi/internal/metrics"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/spend"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProfileSource loads a user's KYC profile.
type ProfileSource interface {
	GetByUserID(ctx context.Context, userID uint) (*models.KYCProfile, error)
}

// SpendSource reports a user's completed spend per category.
type SpendSource interface {
	Spend(ctx context.Context, userID uint, category models.LimitCategory) (*spend.Aggregate, error)
}

// Converter normalises an asset amount into settlement units.
type Converter interface {
	ToSettlement(ctx context.Context, amount decimal.Decimal, asset models.Asset) (decimal.Decimal, error)
}

// LimitCheck is the outcome of an allowed validation.
type LimitCheck struct {
	UserID           uint                 `json:"user_id"`
	Level            int                  `json:"level"`
	Category         models.LimitCategory `json:"category"`
	Amount           decimal.Decimal      `json:"amount"`
	Limits           Limits               `json:"limits"`
	DailySpent       decimal.Decimal      `json:"daily_spent"`
	MonthlySpent     decimal.Decimal      `json:"monthly_spent"`
	DailyRemaining   decimal.Decimal      `json:"daily_remaining"`
	MonthlyRemaining decimal.Decimal      `json:"monthly_remaining"`
}

// Engine enforces tiered daily and monthly caps.
type Engine struct {
	table    *Table
	profiles ProfileSource
	spend    SpendSource
	conv     Converter
	logger   *zap.Logger
	metrics  metrics.Collector
}

func NewEngine(table *Table, profiles ProfileSource, spendSource SpendSource, conv Converter, logger *zap.Logger, collector metrics.Collector) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		table:    table,
		profiles: profiles,
		spend:    spendSource,
		conv:     conv,
		logger:   logger,
		metrics:  metrics.OrNoop(collector),
	}
}

// LimitsFor returns the tier and caps for profile. A nil profile is treated
// as level 0.
func (e *Engine) LimitsFor(profile *models.KYCProfile, category models.LimitCategory) (Tier, Limits) {
	level := 0
	if profile != nil {
		level = profile.Level
	}
	tier := e.table.Tier(level)
	return tier, tier.Limits(category)
}

// ToSettlementCurrency converts amount of currency into settlement units.
func (e *Engine) ToSettlementCurrency(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	asset, err := models.ParseAsset(currency)
	if err != nil {
		return decimal.Zero, apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", currency)
	}
	return e.conv.ToSettlement(ctx, amount, asset)
}

// Validate checks that amount fits within the user's remaining daily and
// monthly caps for category.
func (e *Engine) Validate(ctx context.Context, userID uint, amount decimal.Decimal, currency string, category models.LimitCategory) (*LimitCheck, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrValidation.WithMessage("amount must be greater than zero")
	}
	if !category.Valid() {
		return nil, apperrors.ErrValidation.WithMessage("unknown limit category %q", category)
	}

	converted, err := e.ToSettlementCurrency(ctx, amount, currency)
	if err != nil {
		e.metrics.RecordError("limit_check", "conversion")
		return nil, err
	}

	profile, err := e.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, limits := e.LimitsFor(profile, category)

	spent, err := e.spend.Spend(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("load spend: %w", err)
	}

	check := &LimitCheck{
		UserID:           userID,
		Level:            tier.Level(),
		Category:         category,
		Amount:           converted,
		Limits:           limits,
		DailySpent:       spent.Daily,
		MonthlySpent:     spent.Monthly,
		DailyRemaining:   remaining(limits.Daily, spent.Daily),
		MonthlyRemaining: remaining(limits.Monthly, spent.Monthly),
	}

	if spent.Daily.Add(converted).GreaterThan(limits.Daily) {
		return nil, e.deny("daily", limits.Daily, spent.Daily, converted, tier.Level(), category)
	}
	if spent.Monthly.Add(converted).GreaterThan(limits.Monthly) {
		return nil, e.deny("monthly", limits.Monthly, spent.Monthly, converted, tier.Level(), category)
	}
	e.metrics.RecordOperationResult("limit_check", "allowed")
	return check, nil
}

// Status reports caps and current usage without validating an amount.
func (e *Engine) Status(ctx context.Context, userID uint, category models.LimitCategory) (*LimitCheck, error) {
	if !category.Valid() {
		return nil, apperrors.ErrValidation.WithMessage("unknown limit category %q", category)
	}
	profile, err := e.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, limits := e.LimitsFor(profile, category)
	spent, err := e.spend.Spend(ctx, userID, category)
	if err != nil {
		return nil, fmt.Errorf("load spend: %w", err)
	}
	return &LimitCheck{
		UserID:           userID,
		Level:            tier.Level(),
		Category:         category,
		Amount:           decimal.Zero,
		Limits:           limits,
		DailySpent:       spent.Daily,
		MonthlySpent:     spent.Monthly,
		DailyRemaining:   remaining(limits.Daily, spent.Daily),
		MonthlyRemaining: remaining(limits.Monthly, spent.Monthly),
	}, nil
}

func (e *Engine) profile(ctx context.Context, userID uint) (*models.KYCProfile, error) {
	p, err := e.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load kyc profile: %w", err)
	}
	return p, nil
}

func (e *Engine) deny(period string, limit, spent, requested decimal.Decimal, level int, category models.LimitCategory) error {
	e.metrics.RecordOperationResult("limit_check", "denied_"+period)
	e.logger.Info("limit exceeded",
		zap.String("period", period),
		zap.String("category", string(category)),
		zap.Int("level", level),
		zap.String("limit", limit.String()),
		zap.String("spent", spent.String()),
		zap.String("requested", requested.String()))

	return apperrors.ErrLimitExceeded.
		WithMessage("%s %s limit exceeded", period, category).
		WithDetails(map[string]interface{}{
			"period":          period,
			"category":        category,
			"limit":           limit.StringFixed(2),
			"spent":           spent.StringFixed(2),
			"requested":       requested.StringFixed(2),
			"availableAmount": remaining(limit, spent).StringFixed(2),
			"level":           level,
		})
}

func remaining(limit, spent decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, limit.Sub(spent))
}
