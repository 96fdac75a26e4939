package repositories

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db           *gorm.DB
	Balances     BalanceRepository
	Transactions TransactionRepository
	KYC          KYCRepository
	Users        UserRepository
	Outbox       OutboxRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Balances:     NewBalanceRepository(db),
		Transactions: NewTransactionRepository(db),
		KYC:          NewKYCRepository(db),
		Users:        NewUserRepository(db),
		Outbox:       NewOutboxRepository(db),
	}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ExecuteInTransaction runs fn against a Store bound to a single database
// transaction. Any error returned by fn rolls everything back.
func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
