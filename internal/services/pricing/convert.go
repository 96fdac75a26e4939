package pricing

import (
	"context"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"

	"github.com/shopspring/decimal"
)

// RateSource is satisfied by Cache.
type RateSource interface {
	GetRate(ctx context.Context, base, quote string) (Quote, error)
}

// Converter normalises asset amounts into the settlement currency.
type Converter struct {
	rates RateSource
}

func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// ToSettlement converts amount of asset into NGN-pegged settlement units.
// Settlement assets convert 1:1, stablecoins through the USD offramp rate and
// volatile assets through their USD price and then the offramp rate.
func (c *Converter) ToSettlement(ctx context.Context, amount decimal.Decimal, asset models.Asset) (decimal.Decimal, error) {
	switch asset.Class() {
	case models.AssetClassSettlement:
		return amount, nil
	case models.AssetClassStablecoin:
		usdNgn, err := c.rates.GetRate(ctx, "USD", "NGN")
		if err != nil {
			return decimal.Zero, err
		}
		return amount.Mul(usdNgn.Rate), nil
	case models.AssetClassVolatile:
		assetUsd, err := c.rates.GetRate(ctx, string(asset), "USD")
		if err != nil {
			return decimal.Zero, err
		}
		usdNgn, err := c.rates.GetRate(ctx, "USD", "NGN")
		if err != nil {
			return decimal.Zero, err
		}
		return amount.Mul(assetUsd.Rate).Mul(usdNgn.Rate), nil
	default:
		return decimal.Zero, apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", asset)
	}
}
