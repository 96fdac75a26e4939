package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionStatus string

const (
	StatusInitiated       TransactionStatus = "INITIATED"
	StatusPendingExternal TransactionStatus = "PENDING_EXTERNAL"
	StatusProcessing      TransactionStatus = "PROCESSING"
	StatusCompleted       TransactionStatus = "COMPLETED"
	StatusFailed          TransactionStatus = "FAILED"
	StatusRefunded        TransactionStatus = "REFUNDED"
)

// Terminal reports whether no further settlement outcome applies.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// InFlight reports whether funds are reserved awaiting a provider outcome.
func (s TransactionStatus) InFlight() bool {
	return s == StatusPendingExternal || s == StatusProcessing
}

// Transaction types
type TransactionType string

const (
	TransactionTypeAirtime    TransactionType = "AIRTIME"
	TransactionTypeData       TransactionType = "DATA"
	TransactionTypeBill       TransactionType = "BILL"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
)

// LimitCategory groups transaction types under one KYC cap.
type LimitCategory string

const (
	CategoryUtility    LimitCategory = "utility"
	CategoryCrypto     LimitCategory = "crypto"
	CategorySettlement LimitCategory = "settlement"
)

func (c LimitCategory) Valid() bool {
	switch c {
	case CategoryUtility, CategoryCrypto, CategorySettlement:
		return true
	}
	return false
}

// CategoryFor maps a transaction to the limit bucket it counts against.
// Settlement-asset movements count as settlement, other assets as crypto.
func CategoryFor(t TransactionType, asset Asset) LimitCategory {
	switch t {
	case TransactionTypeAirtime, TransactionTypeData, TransactionTypeBill:
		return CategoryUtility
	}
	if asset.IsSettlement() {
		return CategorySettlement
	}
	return CategoryCrypto
}

// SettlementMode selects how the ledger is driven for a provider.
type SettlementMode string

const (
	// ModeReserve holds funds in pending until the provider confirms.
	ModeReserve SettlementMode = "reserve"
	// ModeDirect debits on synchronous success and credits back on refund.
	ModeDirect SettlementMode = "direct"
)

type Transaction struct {
	ID                  string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	RequestID           string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"`
	UserID              uint              `gorm:"index;not null" json:"user_id"`
	Type                TransactionType   `gorm:"type:varchar(20);not null" json:"type"`
	Category            LimitCategory     `gorm:"type:varchar(20);index;not null" json:"category"`
	Asset               Asset             `gorm:"type:varchar(10);not null" json:"asset"`
	Amount              decimal.Decimal   `gorm:"type:numeric(36,18);not null" json:"amount"`
	SettlementAmount    decimal.Decimal   `gorm:"type:numeric(36,18);not null;default:0" json:"settlement_amount"`
	Destination         string            `gorm:"type:varchar(128)" json:"destination"`
	CounterpartyID      *uint             `json:"counterparty_id,omitempty"`
	Provider            string            `gorm:"type:varchar(32);index" json:"provider"`
	Mode                SettlementMode    `gorm:"type:varchar(10);not null" json:"mode"`
	Status              TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	ProviderRef         string            `gorm:"type:varchar(128);index" json:"provider_ref,omitempty"`
	ProviderTxID        string            `gorm:"type:varchar(128);index" json:"provider_tx_id,omitempty"`
	WebhookProcessedAt  *time.Time        `json:"webhook_processed_at,omitempty"`
	NeedsReconciliation bool              `gorm:"index;not null;default:false" json:"needs_reconciliation"`
	ProcessingErrors    StringList        `gorm:"type:jsonb" json:"processing_errors,omitempty"`
	Metadata            JSON              `gorm:"type:jsonb" json:"metadata,omitempty"`
	CompletedAt         *time.Time        `gorm:"index" json:"completed_at,omitempty"`
	CreatedAt           time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
