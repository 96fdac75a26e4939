package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// coinIDs maps assets to market feed identifiers.
var coinIDs = map[models.Asset]string{
	models.AssetBTC:   "bitcoin",
	models.AssetETH:   "ethereum",
	models.AssetSOL:   "solana",
	models.AssetBNB:   "binancecoin",
	models.AssetMATIC: "matic-network",
	models.AssetAVAX:  "avalanche-2",
	models.AssetUSDT:  "tether",
	models.AssetUSDC:  "usd-coin",
}

// MarketFeed fetches spot prices from a CoinGecko-compatible
// /simple/price endpoint.
type MarketFeed struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewMarketFeed(baseURL, apiKey string, requestsPerSecond int, client *http.Client) *MarketFeed {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &MarketFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

func (m *MarketFeed) Name() string { return "market" }

func (m *MarketFeed) Fetch(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	id, ok := coinIDs[models.Asset(strings.ToUpper(base))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedPair, pairKey(base, quote))
	}
	vs := strings.ToLower(quote)

	if err := m.limiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", vs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	if m.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price feed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	var body map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price feed response: %w", err)
	}
	raw, ok := body[id][vs]
	if !ok {
		return decimal.Zero, fmt.Errorf("price feed response missing %s/%s", id, vs)
	}
	return decimal.NewFromString(raw.String())
}
