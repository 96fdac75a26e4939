package ledger_test

import (
	"context"
	"errors"
	"testing"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/ledger"
	"kudi/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*ledger.Ledger, func(string, string)) {
	db := testutil.NewDB(t)
	l := ledger.New(repositories.NewBalanceRepository(db), nil)
	assertBalance := func(available, pending string) {
		t.Helper()
		b, err := l.Balance(context.Background(), 1, models.AssetNGNZ)
		require.NoError(t, err)
		assert.True(t, b.Available.Equal(testutil.Dec(available)), "available %s", b.Available)
		assert.True(t, b.Pending.Equal(testutil.Dec(pending)), "pending %s", b.Pending)
	}
	testutil.SeedBalance(t, db, 1, models.AssetNGNZ, "1000", "0")
	return l, assertBalance
}

func TestLedger_ReserveThenCommitConservesTotal(t *testing.T) {
	ctx := context.Background()
	l, assertBalance := newLedger(t)

	require.NoError(t, l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("300")))
	assertBalance("700", "300")

	require.NoError(t, l.Commit(ctx, 1, models.AssetNGNZ, testutil.Dec("300")))
	assertBalance("700", "0")
}

func TestLedger_ReserveThenReleaseRestores(t *testing.T) {
	ctx := context.Background()
	l, assertBalance := newLedger(t)

	require.NoError(t, l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("300")))
	require.NoError(t, l.Release(ctx, 1, models.AssetNGNZ, testutil.Dec("300")))
	assertBalance("1000", "0")
}

func TestLedger_InsufficientBalanceCarriesDetails(t *testing.T) {
	ctx := context.Background()
	l, assertBalance := newLedger(t)

	err := l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("1000.01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))

	de, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "1000", de.Details["available"])
	assertBalance("1000", "0")

	err = l.DebitDirect(ctx, 1, models.AssetNGNZ, testutil.Dec("5000"))
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))
}

func TestLedger_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	assert.ErrorIs(t, l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("0")), apperrors.ErrValidation)
	assert.ErrorIs(t, l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("-5")), apperrors.ErrValidation)
	assert.ErrorIs(t, l.Reserve(ctx, 1, models.Asset("DOGE"), testutil.Dec("5")), apperrors.ErrUnsupportedCurrency)
}

func TestLedger_SettlingMoreThanPendingIsAnInconsistency(t *testing.T) {
	ctx := context.Background()
	l, assertBalance := newLedger(t)

	require.NoError(t, l.Reserve(ctx, 1, models.AssetNGNZ, testutil.Dec("100")))
	assert.ErrorIs(t, l.Commit(ctx, 1, models.AssetNGNZ, testutil.Dec("101")), ledger.ErrPendingMismatch)
	assert.ErrorIs(t, l.Release(ctx, 1, models.AssetNGNZ, testutil.Dec("101")), ledger.ErrPendingMismatch)
	assertBalance("900", "100")
}

func TestLedger_BalanceDefaultsToZero(t *testing.T) {
	l, _ := newLedger(t)
	b, err := l.Balance(context.Background(), 1, models.AssetBTC)
	require.NoError(t, err)
	assert.True(t, b.Available.IsZero())
}
