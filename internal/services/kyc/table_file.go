package kyc

import (
	"fmt"
	"os"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type tierFile struct {
	Tiers []struct {
		Level  int `yaml:"level"`
		Limits map[string]struct {
			Daily   string `yaml:"daily"`
			Monthly string `yaml:"monthly"`
		} `yaml:"limits"`
	} `yaml:"tiers"`
}

// LoadTable reads a tier schedule from a YAML file:
//
//	tiers:
//	  - level: 1
//	    limits:
//	      utility: {daily: "50000", monthly: "200000"}
func LoadTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier file: %w", err)
	}
	return ParseTable(raw)
}

// ParseTable decodes the YAML tier schedule.
func ParseTable(raw []byte) (*Table, error) {
	var f tierFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tier file: %w", err)
	}

	tiers := make([]Tier, 0, len(f.Tiers))
	for _, ft := range f.Tiers {
		limits := make(map[models.LimitCategory]Limits, len(ft.Limits))
		for name, l := range ft.Limits {
			category := models.LimitCategory(name)
			if !category.Valid() {
				return nil, fmt.Errorf("tier %d: unknown category %q", ft.Level, name)
			}
			daily, err := decimal.NewFromString(l.Daily)
			if err != nil {
				return nil, fmt.Errorf("tier %d %s daily: %w", ft.Level, name, err)
			}
			monthly, err := decimal.NewFromString(l.Monthly)
			if err != nil {
				return nil, fmt.Errorf("tier %d %s monthly: %w", ft.Level, name, err)
			}
			if daily.IsNegative() || monthly.IsNegative() {
				return nil, fmt.Errorf("tier %d %s: limits must not be negative", ft.Level, name)
			}
			limits[category] = Limits{Daily: daily, Monthly: monthly}
		}
		tiers = append(tiers, NewTier(ft.Level, limits))
	}
	return NewTable(tiers...)
}
