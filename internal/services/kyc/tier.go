package kyc

import (
	"fmt"
	"sort"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
)

// Limits are caps in settlement currency.
type Limits struct {
	Daily   decimal.Decimal `json:"daily" yaml:"daily"`
	Monthly decimal.Decimal `json:"monthly" yaml:"monthly"`
}

// Tier is one verification level's set of caps.
type Tier interface {
	Level() int
	Limits(category models.LimitCategory) Limits
}

type staticTier struct {
	level  int
	limits map[models.LimitCategory]Limits
}

// NewTier builds a Tier. Categories missing from limits are capped at zero.
func NewTier(level int, limits map[models.LimitCategory]Limits) Tier {
	return &staticTier{level: level, limits: limits}
}

func (t *staticTier) Level() int { return t.level }

func (t *staticTier) Limits(category models.LimitCategory) Limits {
	if l, ok := t.limits[category]; ok {
		return l
	}
	return Limits{Daily: decimal.Zero, Monthly: decimal.Zero}
}

// Table resolves a profile level to its Tier.
type Table struct {
	tiers map[int]Tier
}

// NewTable validates that level 0 exists, since it is the fallback for
// unknown levels and missing profiles.
func NewTable(tiers ...Tier) (*Table, error) {
	t := &Table{tiers: make(map[int]Tier, len(tiers))}
	for _, tier := range tiers {
		if _, dup := t.tiers[tier.Level()]; dup {
			return nil, fmt.Errorf("duplicate tier level %d", tier.Level())
		}
		t.tiers[tier.Level()] = tier
	}
	if _, ok := t.tiers[0]; !ok {
		return nil, fmt.Errorf("tier table must define level 0")
	}
	return t, nil
}

// Tier returns the tier for level, or level 0 when level is not defined.
func (t *Table) Tier(level int) Tier {
	if tier, ok := t.tiers[level]; ok {
		return tier
	}
	return t.tiers[0]
}

// Levels lists defined levels in ascending order.
func (t *Table) Levels() []int {
	out := make([]int, 0, len(t.tiers))
	for l := range t.tiers {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

func ngn(daily, monthly int64) Limits {
	return Limits{Daily: decimal.NewFromInt(daily), Monthly: decimal.NewFromInt(monthly)}
}

// DefaultTable is the production tier schedule in NGN.
func DefaultTable() *Table {
	t, _ := NewTable(
		NewTier(0, nil),
		NewTier(1, map[models.LimitCategory]Limits{
			models.CategoryUtility:    ngn(50_000, 200_000),
			models.CategoryCrypto:     ngn(100_000, 1_000_000),
			models.CategorySettlement: ngn(50_000, 200_000),
		}),
		NewTier(2, map[models.LimitCategory]Limits{
			models.CategoryUtility:    ngn(500_000, 5_000_000),
			models.CategoryCrypto:     ngn(5_000_000, 50_000_000),
			models.CategorySettlement: ngn(2_000_000, 20_000_000),
		}),
		NewTier(3, map[models.LimitCategory]Limits{
			models.CategoryUtility:    ngn(2_000_000, 20_000_000),
			models.CategoryCrypto:     ngn(20_000_000, 200_000_000),
			models.CategorySettlement: ngn(10_000_000, 100_000_000),
		}),
	)
	return t
}
