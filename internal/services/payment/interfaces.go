package payment

import (
	"context"

	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/kyc"
	"kudi/internal/services/settlement"
	"kudi/internal/services/transaction"

	"github.com/shopspring/decimal"
)

// Service defines the payment service interface
type Service interface {
	// Airtime, data and utility purchases through the bill aggregator
	Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error)

	// Withdrawals to an external address or account
	Withdraw(ctx context.Context, req WithdrawRequest) (*Receipt, error)

	// Wallet to wallet transfers
	Transfer(ctx context.Context, req TransferRequest) (*Receipt, error)
}

// Dependencies required by the payment service
type LimitValidator interface {
	Validate(ctx context.Context, userID uint, amount decimal.Decimal, currency string, category models.LimitCategory) (*kyc.LimitCheck, error)
}

type StateMachine interface {
	Create(ctx context.Context, txn *models.Transaction) error
	Reserve(ctx context.Context, txn *models.Transaction) error
	Complete(ctx context.Context, txn *models.Transaction, upd transaction.Update) (bool, error)
	Fail(ctx context.Context, txn *models.Transaction, upd transaction.Update) (bool, error)
	RecordProviderRefs(ctx context.Context, txn *models.Transaction, ref, txID string) error
}

type AdapterSource interface {
	Get(name string) (settlement.Adapter, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, userID uint, asset models.Asset) (*models.Balance, error)
}

type Users interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type Transactions interface {
	GetByRequestID(ctx context.Context, requestID string) (*models.Transaction, error)
	FindSimilarInFlight(ctx context.Context, q repositories.SimilarQuery) (*models.Transaction, error)
}
