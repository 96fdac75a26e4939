package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CacheConfig struct {
	// TTL is how long a fetched rate is served without refetching.
	TTL time.Duration
	// StaleGrace extends a rate past TTL only while the provider is failing.
	StaleGrace time.Duration
	// FetchTimeout bounds each provider call.
	FetchTimeout time.Duration
}

// Cache serves rates from memory and refreshes them from a Provider.
// Concurrent misses for the same pair share one provider call.
type Cache struct {
	provider Provider
	cfg      CacheConfig
	logger   *zap.Logger
	metrics  metrics.Collector
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]Quote
	group   singleflight.Group
}

func NewCache(provider Provider, cfg CacheConfig, logger *zap.Logger, collector metrics.Collector) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.StaleGrace < 0 {
		cfg.StaleGrace = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.OrNoop(collector),
		now:      time.Now,
		entries:  make(map[string]Quote),
	}
}

// WithClock replaces the time source.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// GetRate returns the rate for base/quote, fetching when the cached value is
// older than the TTL.
func (c *Cache) GetRate(ctx context.Context, base, quote string) (Quote, error) {
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	if base == quote {
		return Quote{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), AsOf: c.now(), Source: "identity"}, nil
	}
	key := pairKey(base, quote)

	if q, ok := c.lookup(key); ok && c.now().Sub(q.AsOf) < c.cfg.TTL {
		c.metrics.RecordCacheHit("pricing")
		return q, nil
	}
	c.metrics.RecordCacheMiss("pricing")

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another caller may have refreshed while we waited
		if q, ok := c.lookup(key); ok && c.now().Sub(q.AsOf) < c.cfg.TTL {
			return q, nil
		}
		return c.refresh(ctx, base, quote)
	})
	if err != nil {
		return Quote{}, err
	}
	return v.(Quote), nil
}

func (c *Cache) refresh(ctx context.Context, base, quote string) (Quote, error) {
	key := pairKey(base, quote)
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	rate, err := c.provider.Fetch(fetchCtx, base, quote)
	c.metrics.RecordOperationDuration("price_fetch", time.Since(start))
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("%w: %s", ErrInvalidRate, rate.String())
	}
	if err != nil {
		c.metrics.RecordError("price_fetch", c.provider.Name())
		if q, ok := c.lookup(key); ok && c.now().Sub(q.AsOf) < c.cfg.TTL+c.cfg.StaleGrace {
			c.logger.Warn("serving stale rate after provider failure",
				zap.String("pair", key),
				zap.Time("as_of", q.AsOf),
				zap.Error(err))
			return q, nil
		}
		c.logger.Error("price fetch failed",
			zap.String("pair", key),
			zap.String("provider", c.provider.Name()),
			zap.Error(err))
		return Quote{}, apperrors.ErrPriceUnavailable.WithDetails(map[string]interface{}{"pair": key}).Wrap(err)
	}

	q := Quote{Base: base, Quote: quote, Rate: rate, AsOf: c.now(), Source: c.provider.Name()}
	c.mu.Lock()
	c.entries[key] = q
	c.mu.Unlock()
	return q, nil
}

func (c *Cache) lookup(key string) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[key]
	return q, ok
}
