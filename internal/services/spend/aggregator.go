// Package spend computes how much a user has spent per limit category in the
// current day and month, expressed in the settlement currency.
package spend

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"kudi/internal/metrics"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/repositories/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source sums completed spend per asset since a point in time.
type Source interface {
	SumCompletedByAsset(ctx context.Context, userID uint, category models.LimitCategory, since time.Time) ([]repositories.AssetTotal, error)
}

// Converter normalises an asset amount into settlement units.
type Converter interface {
	ToSettlement(ctx context.Context, amount decimal.Decimal, asset models.Asset) (decimal.Decimal, error)
}

// Aggregate is a user's completed spend in one category.
type Aggregate struct {
	UserID     uint                 `json:"user_id"`
	Category   models.LimitCategory `json:"category"`
	Daily      decimal.Decimal      `json:"daily"`
	Monthly    decimal.Decimal      `json:"monthly"`
	ComputedAt time.Time            `json:"computed_at"`
	// Skipped lists assets left out because they could not be converted.
	Skipped []models.Asset `json:"skipped,omitempty"`
}

type Config struct {
	TTL      time.Duration
	Location *time.Location
}

type Aggregator struct {
	source  Source
	conv    Converter
	cache   cache.Cache
	cfg     Config
	logger  *zap.Logger
	metrics metrics.Collector
	now     func() time.Time
}

func NewAggregator(source Source, conv Converter, c cache.Cache, cfg Config, logger *zap.Logger, collector metrics.Collector) *Aggregator {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		source:  source,
		conv:    conv,
		cache:   c,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.OrNoop(collector),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Key is the cache key for a user's category aggregate.
func Key(userID uint, category models.LimitCategory) string {
	return cache.GenerateKey("spend", strconv.FormatUint(uint64(userID), 10), category)
}

// Windows returns the start of the current day and month in loc.
func Windows(now time.Time, loc *time.Location) (dayStart, monthStart time.Time) {
	local := now.In(loc)
	dayStart = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	monthStart = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return dayStart, monthStart
}

// Spend returns the cached aggregate when it was computed inside the current
// day window, otherwise recomputes it.
func (a *Aggregator) Spend(ctx context.Context, userID uint, category models.LimitCategory) (*Aggregate, error) {
	now := a.now()
	dayStart, monthStart := Windows(now, a.cfg.Location)
	key := Key(userID, category)

	if a.cache != nil {
		var cached Aggregate
		found, err := a.cache.Get(ctx, key, &cached)
		if err != nil {
			a.logger.Warn("spend cache read failed", zap.String("key", key), zap.Error(err))
		}
		if found && !cached.ComputedAt.Before(dayStart) {
			a.metrics.RecordCacheHit("spend")
			return &cached, nil
		}
	}
	a.metrics.RecordCacheMiss("spend")

	agg, err := a.compute(ctx, userID, category, dayStart, monthStart)
	if err != nil {
		return nil, err
	}
	agg.ComputedAt = now

	// an undercounted aggregate is used once but never cached
	if a.cache != nil && len(agg.Skipped) == 0 {
		if err := a.cache.SetWithTTL(ctx, key, agg, a.cfg.TTL); err != nil {
			a.logger.Warn("spend cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return agg, nil
}

// Invalidate drops the cached aggregate. It is called whenever a transaction
// in the category reaches a terminal state that changes completed spend.
func (a *Aggregator) Invalidate(ctx context.Context, userID uint, category models.LimitCategory) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete(ctx, Key(userID, category))
}

func (a *Aggregator) compute(ctx context.Context, userID uint, category models.LimitCategory, dayStart, monthStart time.Time) (*Aggregate, error) {
	agg := &Aggregate{UserID: userID, Category: category, Daily: decimal.Zero, Monthly: decimal.Zero}
	skipped := map[models.Asset]bool{}

	monthly, err := a.source.SumCompletedByAsset(ctx, userID, category, monthStart)
	if err != nil {
		return nil, fmt.Errorf("sum monthly spend: %w", err)
	}
	agg.Monthly = a.convertAll(ctx, userID, category, monthly, skipped)

	daily, err := a.source.SumCompletedByAsset(ctx, userID, category, dayStart)
	if err != nil {
		return nil, fmt.Errorf("sum daily spend: %w", err)
	}
	agg.Daily = a.convertAll(ctx, userID, category, daily, skipped)

	for asset := range skipped {
		agg.Skipped = append(agg.Skipped, asset)
	}
	sort.Slice(agg.Skipped, func(i, j int) bool { return agg.Skipped[i] < agg.Skipped[j] })
	return agg, nil
}

func (a *Aggregator) convertAll(ctx context.Context, userID uint, category models.LimitCategory, totals []repositories.AssetTotal, skipped map[models.Asset]bool) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range totals {
		if row.Total.IsZero() {
			continue
		}
		converted, err := a.conv.ToSettlement(ctx, row.Total.Abs(), row.Asset)
		if err != nil {
			if !skipped[row.Asset] {
				a.logger.Warn("skipping currency in spend aggregate",
					zap.Uint("user_id", userID),
					zap.String("category", string(category)),
					zap.String("asset", string(row.Asset)),
					zap.String("amount", row.Total.String()),
					zap.Error(err))
			}
			skipped[row.Asset] = true
			continue
		}
		sum = sum.Add(converted)
	}
	return sum
}
