package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAsset(t *testing.T) {
	a, err := ParseAsset(" usdt ")
	require.NoError(t, err)
	assert.Equal(t, AssetUSDT, a)
	assert.True(t, a.IsStablecoin())

	_, err = ParseAsset("DOGE")
	assert.ErrorIs(t, err, ErrUnknownAsset)

	for _, a := range SupportedAssets() {
		assert.NotEqual(t, AssetClassUnknown, a.Class(), a)
	}
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, CategoryUtility, CategoryFor(TransactionTypeAirtime, AssetNGNZ))
	assert.Equal(t, CategoryUtility, CategoryFor(TransactionTypeBill, AssetNGNZ))
	assert.Equal(t, CategorySettlement, CategoryFor(TransactionTypeWithdrawal, AssetNGNZ))
	assert.Equal(t, CategoryCrypto, CategoryFor(TransactionTypeWithdrawal, AssetBTC))
	assert.Equal(t, CategoryCrypto, CategoryFor(TransactionTypeTransfer, AssetUSDC))
}

func TestTransactionStatus(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusPendingExternal.InFlight())
	assert.False(t, StatusInitiated.InFlight())
}

func TestUserPIN(t *testing.T) {
	var u User
	assert.ErrorIs(t, u.SetPIN("12a4"), ErrInvalidPIN)
	assert.ErrorIs(t, u.SetPIN("123"), ErrInvalidPIN)
	assert.False(t, u.CheckPIN("1234"))

	require.NoError(t, u.SetPIN("1234"))
	assert.True(t, u.CheckPIN("1234"))
	assert.False(t, u.CheckPIN("4321"))
}

func TestStringListScan(t *testing.T) {
	var l StringList
	require.NoError(t, l.Scan(`["a","b"]`))
	assert.Equal(t, StringList{"a", "b"}, l)

	v, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}
