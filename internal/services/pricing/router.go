package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Router sends each pair to the provider that prices it: USD/NGN goes to the
// offramp desk, ASSET/USD to the market feed.
type Router struct {
	Market  Provider
	Offramp Provider
}

func (r *Router) Name() string { return "router" }

func (r *Router) Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	p, err := r.route(strings.ToUpper(base), strings.ToUpper(quote))
	if err != nil {
		return decimal.Zero, err
	}
	return p.Fetch(ctx, base, quote)
}

func (r *Router) route(base, quote string) (Provider, error) {
	switch {
	case base == "USD" && quote == "NGN":
		if r.Offramp != nil {
			return r.Offramp, nil
		}
	case quote == "USD":
		if r.Market != nil {
			return r.Market, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedPair, pairKey(base, quote))
}

// StaticRates serves operator-configured rates.
type StaticRates struct {
	name  string
	rates map[string]decimal.Decimal
}

func NewStaticRates(name string) *StaticRates {
	return &StaticRates{name: name, rates: make(map[string]decimal.Decimal)}
}

// Set configures base/quote. A non-positive rate leaves the pair unpriced.
func (s *StaticRates) Set(base, quote string, rate decimal.Decimal) *StaticRates {
	if rate.IsPositive() {
		s.rates[pairKey(base, quote)] = rate
	}
	return s
}

func (s *StaticRates) Name() string { return s.name }

func (s *StaticRates) Fetch(_ context.Context, base, quote string) (decimal.Decimal, error) {
	rate, ok := s.rates[pairKey(base, quote)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateNotConfigured, pairKey(base, quote))
	}
	return rate, nil
}
