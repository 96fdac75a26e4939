package models

import (
	"errors"
	"fmt"
	"strings"
)

// Asset is a currency a user can hold. The set is closed: values outside it
// are rejected at parse time rather than flowing into pricing or limits.
type Asset string

const (
	AssetBTC   Asset = "BTC"
	AssetETH   Asset = "ETH"
	AssetSOL   Asset = "SOL"
	AssetBNB   Asset = "BNB"
	AssetMATIC Asset = "MATIC"
	AssetAVAX  Asset = "AVAX"
	AssetUSDT  Asset = "USDT"
	AssetUSDC  Asset = "USDC"
	AssetNGNZ  Asset = "NGNZ"
)

// SettlementAsset is the Naira-pegged unit every limit is expressed in.
const SettlementAsset = AssetNGNZ

type AssetClass int

const (
	AssetClassUnknown AssetClass = iota
	AssetClassSettlement
	AssetClassStablecoin
	AssetClassVolatile
)

var assetClasses = map[Asset]AssetClass{
	AssetBTC:   AssetClassVolatile,
	AssetETH:   AssetClassVolatile,
	AssetSOL:   AssetClassVolatile,
	AssetBNB:   AssetClassVolatile,
	AssetMATIC: AssetClassVolatile,
	AssetAVAX:  AssetClassVolatile,
	AssetUSDT:  AssetClassStablecoin,
	AssetUSDC:  AssetClassStablecoin,
	AssetNGNZ:  AssetClassSettlement,
}

var ErrUnknownAsset = errors.New("unknown asset")

// ParseAsset normalises s and checks it against the supported set.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, s)
	}
	return a, nil
}

func (a Asset) Valid() bool {
	_, ok := assetClasses[a]
	return ok
}

func (a Asset) Class() AssetClass {
	return assetClasses[a]
}

func (a Asset) IsStablecoin() bool { return a.Class() == AssetClassStablecoin }
func (a Asset) IsSettlement() bool { return a.Class() == AssetClassSettlement }

func (a Asset) String() string { return string(a) }

// SupportedAssets lists every asset in a stable order.
func SupportedAssets() []Asset {
	return []Asset{AssetBTC, AssetETH, AssetSOL, AssetBNB, AssetMATIC, AssetAVAX, AssetUSDT, AssetUSDC, AssetNGNZ}
}
