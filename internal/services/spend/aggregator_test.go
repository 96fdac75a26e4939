package spend_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/repositories/cache"
	"kudi/internal/services/spend"
	"kudi/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fixedConverter prices USDT at 1500 and fails for everything volatile.
type fixedConverter struct{}

func (fixedConverter) ToSettlement(_ context.Context, amount decimal.Decimal, asset models.Asset) (decimal.Decimal, error) {
	switch asset {
	case models.AssetNGNZ:
		return amount, nil
	case models.AssetUSDT:
		return amount.Mul(decimal.NewFromInt(1500)), nil
	}
	return decimal.Zero, apperrors.ErrPriceUnavailable
}

var lagos = time.FixedZone("WAT", 3600)

func completed(t *testing.T, db *gorm.DB, userID uint, asset models.Asset, amount string, at time.Time) {
	t.Helper()
	settled(t, db, userID, asset, amount, at, at)
}

func settled(t *testing.T, db *gorm.DB, userID uint, asset models.Asset, amount string, createdAt, completedAt time.Time) {
	t.Helper()
	completedAt = completedAt.UTC()
	require.NoError(t, db.Create(&models.Transaction{
		RequestID:   uuid.NewString(),
		UserID:      userID,
		Type:        models.TransactionTypeAirtime,
		Category:    models.CategoryUtility,
		Asset:       asset,
		Amount:      testutil.Dec(amount),
		Mode:        models.ModeReserve,
		Status:      models.StatusCompleted,
		CompletedAt: &completedAt,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   completedAt,
	}).Error)
}

func setup(t *testing.T, now time.Time) (*spend.Aggregator, *gorm.DB, *cache.MemoryCache) {
	db := testutil.NewDB(t)
	mc := cache.NewMemoryCache(time.Minute)
	agg := spend.NewAggregator(repositories.NewTransactionRepository(db), fixedConverter{}, mc,
		spend.Config{TTL: time.Minute, Location: lagos}, nil, nil)
	agg.WithClock(func() time.Time { return now })
	return agg, db, mc
}

func TestWindows_UseConfiguredTimezone(t *testing.T) {
	// 23:30 UTC on the 31st is already 00:30 on the 1st in Lagos
	now := time.Date(2025, 1, 31, 23, 30, 0, 0, time.UTC)
	day, month := spend.Windows(now, lagos)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, lagos), day)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, lagos), month)
}

func TestAggregator_SumsCompletedInWindows(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, lagos)
	agg, db, _ := setup(t, now)

	completed(t, db, 1, models.AssetNGNZ, "1000", now.Add(-time.Hour))
	completed(t, db, 1, models.AssetUSDT, "2", now.Add(-2*time.Hour))
	completed(t, db, 1, models.AssetNGNZ, "5000", now.AddDate(0, 0, -3))
	completed(t, db, 1, models.AssetNGNZ, "99999", now.AddDate(0, -1, 0))

	got, err := agg.Spend(context.Background(), 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "4000", got.Daily.String())
	assert.Equal(t, "9000", got.Monthly.String())
	assert.Empty(t, got.Skipped)
}

func TestAggregator_CountsByCompletionTime(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, lagos)
	agg, db, _ := setup(t, now)
	midnight := time.Date(2025, 3, 15, 0, 0, 0, 0, lagos)

	// placed before midnight, settled after it
	settled(t, db, 1, models.AssetNGNZ, "700", midnight.Add(-time.Minute), midnight.Add(time.Minute))
	// placed and settled yesterday
	settled(t, db, 1, models.AssetNGNZ, "300", midnight.Add(-2*time.Hour), midnight.Add(-time.Hour))

	got, err := agg.Spend(context.Background(), 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "700", got.Daily.String())
	assert.Equal(t, "1000", got.Monthly.String())
}

func TestAggregator_SkipsUnconvertibleCurrencies(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, lagos)
	agg, db, mc := setup(t, now)

	completed(t, db, 1, models.AssetNGNZ, "1000", now.Add(-time.Hour))
	completed(t, db, 1, models.AssetBTC, "0.5", now.Add(-time.Hour))

	got, err := agg.Spend(context.Background(), 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Daily.String())
	assert.Equal(t, []models.Asset{models.AssetBTC}, got.Skipped)
	assert.Zero(t, mc.Len(), "undercounted aggregates are not cached")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "spend:42:utility", spend.Key(42, models.CategoryUtility))
}

func TestAggregator_CacheAndInvalidate(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, lagos)
	agg, db, _ := setup(t, now)
	ctx := context.Background()

	completed(t, db, 1, models.AssetNGNZ, "1000", now.Add(-time.Hour))
	got, err := agg.Spend(ctx, 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Daily.String())

	completed(t, db, 1, models.AssetNGNZ, "500", now.Add(-time.Minute))
	got, err = agg.Spend(ctx, 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Daily.String(), "served from cache")

	require.NoError(t, agg.Invalidate(ctx, 1, models.CategoryUtility))
	got, err = agg.Spend(ctx, 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.Equal(t, "1500", got.Daily.String())
}

func TestAggregator_IgnoresCacheFromPreviousDay(t *testing.T) {
	now := time.Date(2025, 3, 15, 23, 59, 0, 0, lagos)
	agg, db, _ := setup(t, now)
	ctx := context.Background()

	completed(t, db, 1, models.AssetNGNZ, "1000", now.Add(-time.Hour))
	_, err := agg.Spend(ctx, 1, models.CategoryUtility)
	require.NoError(t, err)

	next := now.Add(2 * time.Minute)
	agg.WithClock(func() time.Time { return next })
	got, err := agg.Spend(ctx, 1, models.CategoryUtility)
	require.NoError(t, err)
	assert.True(t, got.Daily.IsZero())
	assert.Equal(t, "1000", got.Monthly.String())
}

type failingSource struct{}

func (failingSource) SumCompletedByAsset(context.Context, uint, models.LimitCategory, time.Time) ([]repositories.AssetTotal, error) {
	return nil, errors.New("db down")
}

func TestAggregator_SourceErrorPropagates(t *testing.T) {
	agg := spend.NewAggregator(failingSource{}, fixedConverter{}, nil, spend.Config{}, nil, nil)
	_, err := agg.Spend(context.Background(), 1, models.CategoryCrypto)
	assert.Error(t, err)
}
