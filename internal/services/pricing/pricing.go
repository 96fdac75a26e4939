// Package pricing resolves exchange rates for limit checks. Rates are cached
// for a bounded TTL and a failed fetch never produces a default rate: the
// caller gets PriceUnavailable and must fail closed.
package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one rate observation: 1 Base = Rate Quote.
type Quote struct {
	Base   string          `json:"base"`
	Quote  string          `json:"quote"`
	Rate   decimal.Decimal `json:"rate"`
	AsOf   time.Time       `json:"as_of"`
	Source string          `json:"source"`
}

// Pair renders "BASE/QUOTE".
func (q Quote) Pair() string {
	return pairKey(q.Base, q.Quote)
}

// Provider fetches a live rate.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error)
}

var (
	ErrUnsupportedPair   = errors.New("unsupported currency pair")
	ErrRateNotConfigured = errors.New("rate not configured")
	ErrInvalidRate       = errors.New("provider returned a non-positive rate")
)

func pairKey(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}
