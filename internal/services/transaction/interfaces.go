package transaction

import (
	"context"

	"kudi/internal/models"
	"kudi/internal/services/settlement"
)

// SpendInvalidator drops cached spend after a settlement changes it.
type SpendInvalidator interface {
	Invalidate(ctx context.Context, userID uint, category models.LimitCategory) error
}

// AdapterSource resolves a transaction's provider.
type AdapterSource interface {
	Get(name string) (settlement.Adapter, error)
}
