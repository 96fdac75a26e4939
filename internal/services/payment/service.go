// Package payment orchestrates spend requests: it checks the caller,
// enforces limits, records the transaction and drives the provider call.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/metrics"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/settlement"
	"kudi/internal/services/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Dependencies struct {
	Users        Users
	Transactions Transactions
	Balances     BalanceReader
	Limits       LimitValidator
	Machine      StateMachine
	Adapters     AdapterSource
	Logger       *zap.Logger
	Metrics      metrics.Collector
}

type service struct {
	users    Users
	txns     Transactions
	balances BalanceReader
	limits   LimitValidator
	machine  StateMachine
	adapters AdapterSource
	cfg      Config
	logger   *zap.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

// NewService creates a new payment service
func NewService(deps Dependencies, cfg Config) Service {
	if deps.Users == nil || deps.Transactions == nil || deps.Balances == nil {
		panic("repositories are required")
	}
	if deps.Limits == nil {
		panic("limit validator is required")
	}
	if deps.Machine == nil {
		panic("state machine is required")
	}
	if deps.Adapters == nil {
		panic("adapters are required")
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = DefaultDuplicateWindow
	}
	if cfg.BillProvider == "" {
		cfg.BillProvider = settlement.BillPayName
	}
	if cfg.WithdrawalProvider == "" {
		cfg.WithdrawalProvider = settlement.CustodianName
	}
	if cfg.TransferProvider == "" {
		cfg.TransferProvider = settlement.PeerName
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		users:    deps.Users,
		txns:     deps.Transactions,
		balances: deps.Balances,
		limits:   deps.Limits,
		machine:  deps.Machine,
		adapters: deps.Adapters,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics.OrNoop(deps.Metrics),
		now:      time.Now,
	}
}

func (s *service) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	switch req.Type {
	case models.TransactionTypeAirtime, models.TransactionTypeData, models.TransactionTypeBill:
	default:
		return nil, apperrors.ErrValidation.WithMessage("unsupported purchase type %q", req.Type)
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, apperrors.ErrValidation.WithMessage("destination is required")
	}

	meta := map[string]string{}
	if req.ServiceID != "" {
		meta["service_id"] = req.ServiceID
	}
	if req.VariationCode != "" {
		meta["variation_code"] = req.VariationCode
	}
	return s.execute(ctx, order{
		userID:      req.UserID,
		requestID:   req.RequestID,
		txType:      req.Type,
		asset:       models.SettlementAsset,
		amount:      req.Amount,
		destination: strings.TrimSpace(req.Destination),
		provider:    s.cfg.BillProvider,
		pin:         req.PIN,
		meta:        meta,
	})
}

func (s *service) Withdraw(ctx context.Context, req WithdrawRequest) (*Receipt, error) {
	asset, err := models.ParseAsset(req.Asset)
	if err != nil {
		return nil, apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", req.Asset)
	}
	if strings.TrimSpace(req.Address) == "" {
		return nil, apperrors.ErrValidation.WithMessage("address is required")
	}
	meta := map[string]string{}
	if req.Network != "" {
		meta["network"] = req.Network
	}
	return s.execute(ctx, order{
		userID:      req.UserID,
		requestID:   req.RequestID,
		txType:      models.TransactionTypeWithdrawal,
		asset:       asset,
		amount:      req.Amount,
		destination: strings.TrimSpace(req.Address),
		provider:    s.cfg.WithdrawalProvider,
		pin:         req.PIN,
		meta:        meta,
	})
}

func (s *service) Transfer(ctx context.Context, req TransferRequest) (*Receipt, error) {
	asset, err := models.ParseAsset(req.Asset)
	if err != nil {
		return nil, apperrors.ErrUnsupportedCurrency.WithMessage("unsupported currency %q", req.Asset)
	}
	if req.RecipientID == 0 {
		return nil, apperrors.ErrValidation.WithMessage("recipient_id is required")
	}
	if req.RecipientID == req.UserID {
		return nil, apperrors.ErrValidation.WithMessage("cannot transfer to yourself")
	}
	meta := map[string]string{}
	if req.Note != "" {
		meta["note"] = req.Note
	}
	recipient := req.RecipientID
	return s.execute(ctx, order{
		userID:       req.UserID,
		requestID:    req.RequestID,
		txType:       models.TransactionTypeTransfer,
		asset:        asset,
		amount:       req.Amount,
		destination:  fmt.Sprintf("user:%d", recipient),
		counterparty: &recipient,
		provider:     s.cfg.TransferProvider,
		pin:          req.PIN,
		meta:         meta,
	})
}

type order struct {
	userID       uint
	requestID    string
	txType       models.TransactionType
	asset        models.Asset
	amount       decimal.Decimal
	destination  string
	counterparty *uint
	provider     string
	pin          string
	meta         map[string]string
}

func (s *service) execute(ctx context.Context, o order) (*Receipt, error) {
	start := time.Now()
	op := "payment_" + strings.ToLower(string(o.txType))
	defer func() { s.metrics.RecordOperationDuration(op, time.Since(start)) }()

	if !o.amount.IsPositive() {
		return nil, apperrors.ErrValidation.WithMessage("amount must be greater than zero")
	}
	if err := s.checkPIN(ctx, o.userID, o.pin); err != nil {
		return nil, err
	}
	if o.requestID == "" {
		o.requestID = uuid.NewString()
	}
	if err := s.checkDuplicate(ctx, o); err != nil {
		return nil, err
	}

	adapter, err := s.adapters.Get(o.provider)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}

	category := models.CategoryFor(o.txType, o.asset)
	check, err := s.limits.Validate(ctx, o.userID, o.amount, string(o.asset), category)
	if err != nil {
		s.metrics.RecordOperationResult(op, "limit_rejected")
		return nil, err
	}

	meta := models.JSON{}
	for k, v := range o.meta {
		meta[k] = v
	}
	txn := &models.Transaction{
		RequestID:        o.requestID,
		UserID:           o.userID,
		Type:             o.txType,
		Category:         category,
		Asset:            o.asset,
		Amount:           o.amount,
		SettlementAmount: check.Amount,
		Destination:      o.destination,
		CounterpartyID:   o.counterparty,
		Provider:         adapter.Name(),
		Mode:             adapter.Mode(),
		Metadata:         meta,
	}
	if err := s.machine.Create(ctx, txn); err != nil {
		return nil, err
	}

	log := s.logger.With(
		zap.String("transaction_id", txn.ID),
		zap.String("request_id", txn.RequestID),
		zap.Uint("user_id", txn.UserID),
		zap.String("provider", txn.Provider),
		zap.String("mode", string(txn.Mode)))

	if adapter.Mode() == models.ModeReserve {
		if err := s.machine.Reserve(ctx, txn); err != nil {
			s.failBeforeSubmit(ctx, txn, err, log)
			return nil, err
		}
	} else if err := s.checkAvailable(ctx, txn); err != nil {
		s.failBeforeSubmit(ctx, txn, err, log)
		return nil, err
	}

	result, err := s.submit(ctx, adapter, txn, o.meta)
	if err != nil {
		log.Warn("provider submit failed", zap.Error(err))
		if _, failErr := s.machine.Fail(ctx, txn, transaction.Update{Reason: "submit failed: " + err.Error()}); failErr != nil {
			return nil, failErr
		}
		s.metrics.RecordOperationResult(op, "provider_error")
		return nil, asProviderError(err, adapter.Name())
	}

	log.Info("provider answered",
		zap.String("outcome", string(result.Outcome)),
		zap.String("provider_status", result.Status))

	upd := transaction.Update{
		ProviderRef:  result.ProviderRef,
		ProviderTxID: result.ProviderTxID,
		Internal:     settlement.IsInternal(adapter),
	}
	switch result.Outcome {
	case settlement.OutcomeCompleted:
		if _, err := s.machine.Complete(ctx, txn, upd); err != nil {
			return nil, err
		}
		s.metrics.RecordOperationResult(op, "completed")
		return &Receipt{Transaction: txn, Pending: txn.Status.InFlight()}, nil

	case settlement.OutcomeFailed, settlement.OutcomeRefunded:
		upd.Reason = fmt.Sprintf("provider reported %s: %s", result.Status, result.Message)
		if _, err := s.machine.Fail(ctx, txn, upd); err != nil {
			return nil, err
		}
		s.metrics.RecordOperationResult(op, "provider_declined")
		msg := result.Message
		if msg == "" {
			msg = "provider declined the request"
		}
		return nil, apperrors.ErrExternalProvider.WithMessage("%s", msg).WithDetails(map[string]interface{}{
			"transaction_id": txn.ID,
		})

	default:
		if txn.Mode == models.ModeDirect {
			// synchronous providers have no later notification to wait for
			upd.Reason = fmt.Sprintf("provider returned non-final status %q", result.Status)
			if _, err := s.machine.Fail(ctx, txn, upd); err != nil {
				return nil, err
			}
			return nil, apperrors.ErrExternalProvider.WithMessage("provider did not settle the transfer")
		}
		if err := s.machine.RecordProviderRefs(ctx, txn, result.ProviderRef, result.ProviderTxID); err != nil {
			log.Warn("failed to record provider references", zap.Error(err))
		}
		s.metrics.RecordOperationResult(op, "pending")
		return &Receipt{Transaction: txn, Pending: true}, nil
	}
}

// submit calls the provider under a hard deadline that is independent of
// the caller's context, so a disconnecting client cannot abandon an order
// half way. An answer that arrives is acted on even if the deadline passed
// while it was in transit.
func (s *service) submit(ctx context.Context, adapter settlement.Adapter, txn *models.Transaction, meta map[string]string) (*settlement.Result, error) {
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	result, err := adapter.Submit(submitCtx, settlement.Request{
		TransactionID:  txn.ID,
		RequestID:      txn.RequestID,
		UserID:         txn.UserID,
		Type:           txn.Type,
		Asset:          txn.Asset,
		Amount:         txn.Amount,
		Destination:    txn.Destination,
		CounterpartyID: txn.CounterpartyID,
		Metadata:       meta,
	})
	if err == nil && result == nil {
		err = errors.New("provider returned no result")
	}
	return result, err
}

func (s *service) failBeforeSubmit(ctx context.Context, txn *models.Transaction, cause error, log *zap.Logger) {
	if _, err := s.machine.Fail(ctx, txn, transaction.Update{Reason: cause.Error()}); err != nil {
		log.Error("failed to close transaction", zap.Error(err))
	}
}

func (s *service) checkPIN(ctx context.Context, userID uint, pin string) error {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return apperrors.ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if user.Status != "" && user.Status != models.UserStatusActive {
		return apperrors.ErrUnauthorized.WithMessage("account is %s", user.Status)
	}
	if !user.CheckPIN(pin) {
		s.metrics.RecordError("payment", "invalid_pin")
		return apperrors.ErrInvalidPIN
	}
	return nil
}

func (s *service) checkDuplicate(ctx context.Context, o order) error {
	if existing, err := s.txns.GetByRequestID(ctx, o.requestID); err == nil {
		return duplicate(existing, "request %s was already submitted", o.requestID)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}

	similar, err := s.txns.FindSimilarInFlight(ctx, repositories.SimilarQuery{
		UserID:      o.userID,
		Type:        o.txType,
		Asset:       o.asset,
		Destination: o.destination,
		Amount:      o.amount,
		Since:       s.now().Add(-s.cfg.DuplicateWindow),
	})
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return duplicate(similar, "an identical %s is still in progress", strings.ToLower(string(o.txType)))
}

func duplicate(existing *models.Transaction, format string, args ...interface{}) error {
	return apperrors.ErrDuplicateOrStalePending.WithMessage(format, args...).WithDetails(map[string]interface{}{
		"transaction_id": existing.ID,
		"status":         existing.Status,
	})
}

func (s *service) checkAvailable(ctx context.Context, txn *models.Transaction) error {
	b, err := s.balances.Balance(ctx, txn.UserID, txn.Asset)
	if err != nil {
		return err
	}
	if b.Available.LessThan(txn.Amount) {
		return apperrors.ErrInsufficientBalance.WithDetails(map[string]interface{}{
			"asset":     txn.Asset,
			"requested": txn.Amount.String(),
			"available": b.Available.String(),
		})
	}
	return nil
}

// asProviderError keeps client errors from the adapter (a bad recipient,
// say) and reports everything else as a provider failure.
func asProviderError(err error, provider string) error {
	if de, ok := apperrors.As(err); ok && de.ClientError() {
		return err
	}
	if errors.Is(err, apperrors.ErrExternalProvider) {
		return err
	}
	return apperrors.ErrExternalProvider.WithMessage("%s did not respond", provider).Wrap(err)
}
