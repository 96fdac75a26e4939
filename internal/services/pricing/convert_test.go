package pricing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConverter(offramp string) *Converter {
	static := NewStaticRates("static").
		Set("USD", "NGN", decimal.RequireFromString(offramp)).
		Set("BTC", "USD", decimal.NewFromInt(60000))
	router := &Router{Market: static, Offramp: static}
	return NewConverter(NewCache(router, CacheConfig{TTL: 3 * time.Minute}, nil, nil))
}

func TestConverter_ToSettlement(t *testing.T) {
	ctx := context.Background()
	c := testConverter("1500")

	got, err := c.ToSettlement(ctx, decimal.NewFromInt(2500), models.AssetNGNZ)
	require.NoError(t, err)
	assert.Equal(t, "2500", got.String())

	got, err = c.ToSettlement(ctx, decimal.RequireFromString("10.5"), models.AssetUSDT)
	require.NoError(t, err)
	assert.Equal(t, "15750", got.String())

	got, err = c.ToSettlement(ctx, decimal.RequireFromString("0.01"), models.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, "900000", got.String())

	_, err = c.ToSettlement(ctx, decimal.NewFromInt(1), models.Asset("DOGE"))
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedCurrency))
}

func TestConverter_MissingRateFailsClosed(t *testing.T) {
	c := testConverter("0")
	_, err := c.ToSettlement(context.Background(), decimal.NewFromInt(1), models.AssetUSDC)
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))

	_, err = c.ToSettlement(context.Background(), decimal.NewFromInt(1), models.AssetETH)
	assert.True(t, errors.Is(err, apperrors.ErrPriceUnavailable))
}

func TestRouter_UnsupportedPair(t *testing.T) {
	r := &Router{Market: NewStaticRates("m"), Offramp: NewStaticRates("o")}
	_, err := r.Fetch(context.Background(), "EUR", "NGN")
	assert.ErrorIs(t, err, ErrUnsupportedPair)
}

func TestMarketFeed_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		assert.Equal(t, "key", r.Header.Get("x-cg-pro-api-key"))
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":65000.125}}`))
	}))
	defer srv.Close()

	feed := NewMarketFeed(srv.URL+"/", "key", 10, srv.Client())
	rate, err := feed.Fetch(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	assert.Equal(t, "65000.125", rate.String())

	_, err = feed.Fetch(context.Background(), "NGNZ", "USD")
	assert.ErrorIs(t, err, ErrUnsupportedPair)
}

func TestMarketFeed_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	feed := NewMarketFeed(srv.URL, "", 10, srv.Client())
	_, err := feed.Fetch(context.Background(), "ETH", "USD")
	assert.Error(t, err)
}
