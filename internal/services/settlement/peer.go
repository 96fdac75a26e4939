package settlement

import (
	"context"
	"errors"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"
)

const PeerName = "peer"

// UserLookup resolves transfer recipients.
type UserLookup interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Peer settles wallet-to-wallet transfers inside the ledger. It completes
// synchronously, so the sender is debited directly and the recipient
// credited in the same database transaction.
type Peer struct {
	users UserLookup
}

func NewPeer(users UserLookup) *Peer {
	return &Peer{users: users}
}

func (p *Peer) Name() string                { return PeerName }
func (p *Peer) Mode() models.SettlementMode { return models.ModeDirect }

// Internal reports that Peer has no effect outside the ledger.
func (p *Peer) Internal() bool { return true }

func (p *Peer) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.CounterpartyID == nil {
		return nil, apperrors.ErrValidation.WithMessage("transfer recipient is required")
	}
	if *req.CounterpartyID == req.UserID {
		return nil, apperrors.ErrValidation.WithMessage("cannot transfer to yourself")
	}
	recipient, err := p.users.GetByID(ctx, *req.CounterpartyID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("recipient not found")
	}
	if err != nil {
		return nil, err
	}
	if recipient.Status != "" && recipient.Status != models.UserStatusActive {
		return nil, apperrors.ErrValidation.WithMessage("recipient account is not active")
	}
	return &Result{
		Outcome:      OutcomeCompleted,
		Status:       "completed",
		ProviderRef:  req.TransactionID,
		ProviderTxID: req.TransactionID,
	}, nil
}

func (p *Peer) QueryStatus(context.Context, Ref) (*Result, error) {
	return nil, ErrStatusQueryUnsupported
}
