package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is one user's holding of one asset. Available can be spent;
// Pending is reserved against an in-flight external settlement.
type Balance struct {
	ID        uint            `gorm:"primarykey" json:"-"`
	UserID    uint            `gorm:"uniqueIndex:idx_balances_user_asset;not null" json:"user_id"`
	Asset     Asset           `gorm:"type:varchar(10);uniqueIndex:idx_balances_user_asset;not null" json:"asset"`
	Available decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"available"`
	Pending   decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0" json:"pending"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is available plus pending.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Pending)
}
