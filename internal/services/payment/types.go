package payment

import (
	"time"

	"kudi/internal/models"

	"github.com/shopspring/decimal"
)

const (
	DefaultSubmitTimeout   = 30 * time.Second
	DefaultDuplicateWindow = time.Minute
)

type Config struct {
	SubmitTimeout      time.Duration
	DuplicateWindow    time.Duration
	BillProvider       string
	WithdrawalProvider string
	TransferProvider   string
}

// PurchaseRequest buys airtime, data or a utility token in NGNZ.
type PurchaseRequest struct {
	UserID        uint                   `json:"-"`
	RequestID     string                 `json:"request_id"`
	Type          models.TransactionType `json:"type"`
	Amount        decimal.Decimal        `json:"amount"`
	Destination   string                 `json:"destination"`
	ServiceID     string                 `json:"service_id"`
	VariationCode string                 `json:"variation_code"`
	PIN           string                 `json:"pin"`
}

// WithdrawRequest sends funds to an external address or bank account.
type WithdrawRequest struct {
	UserID    uint            `json:"-"`
	RequestID string          `json:"request_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	PIN       string          `json:"pin"`
}

// TransferRequest moves funds to another wallet user.
type TransferRequest struct {
	UserID      uint            `json:"-"`
	RequestID   string          `json:"request_id"`
	RecipientID uint            `json:"recipient_id"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Note        string          `json:"note"`
	PIN         string          `json:"pin"`
}

// Receipt is the state a spend request ended in. Pending means the
// provider accepted the order and its outcome will arrive later.
type Receipt struct {
	Transaction *models.Transaction `json:"transaction"`
	Pending     bool                `json:"pending"`
}
