package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/kyc"
	"kudi/internal/services/ledger"
	"kudi/internal/services/payment"
	"kudi/internal/services/settlement"
	"kudi/internal/services/transaction"
	"kudi/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubAdapter struct {
	name   string
	mode   models.SettlementMode
	submit func(ctx context.Context, req settlement.Request) (*settlement.Result, error)
	calls  int
}

func (a *stubAdapter) Name() string                { return a.name }
func (a *stubAdapter) Mode() models.SettlementMode { return a.mode }

func (a *stubAdapter) Submit(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	a.calls++
	return a.submit(ctx, req)
}

// drainingPeer settles internally like the peer adapter but empties the
// sender's balance first, as a concurrent spend would.
type drainingPeer struct {
	db *gorm.DB
}

func (drainingPeer) Name() string                { return settlement.PeerName }
func (drainingPeer) Mode() models.SettlementMode { return models.ModeDirect }
func (drainingPeer) Internal() bool              { return true }

func (p drainingPeer) Submit(_ context.Context, req settlement.Request) (*settlement.Result, error) {
	if err := p.db.Model(&models.Balance{}).Where("user_id = ?", req.UserID).Update("available", decimal.Zero).Error; err != nil {
		return nil, err
	}
	return &settlement.Result{Outcome: settlement.OutcomeCompleted, Status: "completed", ProviderRef: req.TransactionID}, nil
}

func (drainingPeer) QueryStatus(context.Context, settlement.Ref) (*settlement.Result, error) {
	return nil, settlement.ErrStatusQueryUnsupported
}

func (a *stubAdapter) QueryStatus(context.Context, settlement.Ref) (*settlement.Result, error) {
	return nil, settlement.ErrStatusQueryUnsupported
}

func answer(outcome settlement.Outcome, status string) func(context.Context, settlement.Request) (*settlement.Result, error) {
	return func(context.Context, settlement.Request) (*settlement.Result, error) {
		return &settlement.Result{Outcome: outcome, Status: status, ProviderRef: "ord-1"}, nil
	}
}

type limits struct{ err error }

func (l limits) Validate(_ context.Context, userID uint, amount decimal.Decimal, _ string, category models.LimitCategory) (*kyc.LimitCheck, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &kyc.LimitCheck{UserID: userID, Category: category, Amount: amount}, nil
}

type env struct {
	db    *gorm.DB
	store *repositories.Store
	user  *models.User
	bills *stubAdapter
	svc   payment.Service
}

func newEnv(t *testing.T, limitErr error, cfg payment.Config) *env {
	t.Helper()
	db := testutil.NewDB(t)
	store := repositories.NewStore(db)
	l := ledger.New(store.Balances, nil)
	machine := transaction.NewProcessor(transaction.ProcessorConfig{Store: store, Ledger: l})

	bills := &stubAdapter{name: settlement.BillPayName, mode: models.ModeReserve, submit: answer(settlement.OutcomeOther, "pending")}
	registry := settlement.NewRegistry(bills, settlement.NewPeer(store.Users))

	svc := payment.NewService(payment.Dependencies{
		Users:        store.Users,
		Transactions: store.Transactions,
		Balances:     l,
		Limits:       limits{err: limitErr},
		Machine:      machine,
		Adapters:     registry,
	}, cfg)

	user := testutil.SeedUser(t, db, "ada@example.com", "1234")
	testutil.SeedBalance(t, db, user.ID, models.AssetNGNZ, "10000", "0")
	return &env{db: db, store: store, user: user, bills: bills, svc: svc}
}

func (e *env) airtime(amount string) payment.PurchaseRequest {
	return payment.PurchaseRequest{
		UserID:      e.user.ID,
		Type:        models.TransactionTypeAirtime,
		Amount:      testutil.Dec(amount),
		Destination: "08030000000",
		PIN:         "1234",
	}
}

func (e *env) balance(t *testing.T, userID uint) (string, string) {
	t.Helper()
	b, err := e.store.Balances.Get(context.Background(), userID, models.AssetNGNZ)
	require.NoError(t, err)
	return b.Available.String(), b.Pending.String()
}

func TestPurchase_PendingHoldsFunds(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})

	receipt, err := e.svc.Purchase(context.Background(), e.airtime("1500"))
	require.NoError(t, err)
	assert.True(t, receipt.Pending)
	assert.Equal(t, models.StatusPendingExternal, receipt.Transaction.Status)
	assert.Equal(t, models.CategoryUtility, receipt.Transaction.Category)
	assert.Equal(t, "ord-1", receipt.Transaction.ProviderRef)

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "8500", avail)
	assert.Equal(t, "1500", pending)
}

func TestPurchase_CompletedSynchronously(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	e.bills.submit = answer(settlement.OutcomeCompleted, "delivered")

	receipt, err := e.svc.Purchase(context.Background(), e.airtime("1500"))
	require.NoError(t, err)
	assert.False(t, receipt.Pending)
	assert.Equal(t, models.StatusCompleted, receipt.Transaction.Status)

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "8500", avail)
	assert.Equal(t, "0", pending)
}

func TestPurchase_ProviderDeclined(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	e.bills.submit = answer(settlement.OutcomeFailed, "failed")

	_, err := e.svc.Purchase(context.Background(), e.airtime("1500"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalProvider))
	assert.Equal(t, 502, apperrors.HTTPStatus(err))

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "10000", avail)
	assert.Equal(t, "0", pending)
}

func TestPurchase_SubmitTimeoutReleases(t *testing.T) {
	e := newEnv(t, nil, payment.Config{SubmitTimeout: 50 * time.Millisecond})
	e.bills.submit = func(ctx context.Context, _ settlement.Request) (*settlement.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := e.svc.Purchase(context.Background(), e.airtime("1500"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrExternalProvider))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "10000", avail)
	assert.Equal(t, "0", pending)
}

func TestPurchase_LateAnswerIsHonoured(t *testing.T) {
	e := newEnv(t, nil, payment.Config{SubmitTimeout: 50 * time.Millisecond})
	e.bills.submit = func(ctx context.Context, _ settlement.Request) (*settlement.Result, error) {
		<-ctx.Done()
		return &settlement.Result{Outcome: settlement.OutcomeCompleted, Status: "delivered", ProviderRef: "ord-1"}, nil
	}

	receipt, err := e.svc.Purchase(context.Background(), e.airtime("1500"))
	require.NoError(t, err)
	assert.False(t, receipt.Pending)
	assert.Equal(t, models.StatusCompleted, receipt.Transaction.Status)

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "8500", avail)
	assert.Equal(t, "0", pending)
}

func TestPurchase_InsufficientBalance(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})

	_, err := e.svc.Purchase(context.Background(), e.airtime("20000"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))
	assert.Zero(t, e.bills.calls, "provider never contacted")

	txns, total, err := e.store.Transactions.ListByUser(context.Background(), e.user.ID, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, models.StatusFailed, txns[0].Status)
}

func TestPurchase_WrongPIN(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	req := e.airtime("100")
	req.PIN = "9999"

	_, err := e.svc.Purchase(context.Background(), req)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidPIN))
	assert.Zero(t, e.bills.calls)
}

func TestPurchase_LimitExceeded(t *testing.T) {
	e := newEnv(t, apperrors.ErrLimitExceeded.WithDetails(map[string]interface{}{"period": "daily"}), payment.Config{})

	_, err := e.svc.Purchase(context.Background(), e.airtime("100"))
	assert.True(t, errors.Is(err, apperrors.ErrLimitExceeded))

	_, total, err := e.store.Transactions.ListByUser(context.Background(), e.user.ID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestPurchase_Duplicates(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	ctx := context.Background()

	req := e.airtime("100")
	req.RequestID = "client-req-1"
	first, err := e.svc.Purchase(ctx, req)
	require.NoError(t, err)

	_, err = e.svc.Purchase(ctx, req)
	de, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrDuplicateOrStalePending.Code, de.Code)
	assert.Equal(t, first.Transaction.ID, de.Details["transaction_id"])

	// same order under a fresh request id while the first is still pending
	req.RequestID = "client-req-2"
	_, err = e.svc.Purchase(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateOrStalePending))
	assert.Equal(t, 1, e.bills.calls)
}

func TestPurchase_RejectsBadInput(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	ctx := context.Background()

	req := e.airtime("0")
	_, err := e.svc.Purchase(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	req = e.airtime("10")
	req.Type = models.TransactionTypeWithdrawal
	_, err = e.svc.Purchase(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	req = e.airtime("10")
	req.Destination = " "
	_, err = e.svc.Purchase(ctx, req)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestWithdraw_UnsupportedCurrency(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	_, err := e.svc.Withdraw(context.Background(), payment.WithdrawRequest{
		UserID: e.user.ID, Asset: "DOGE", Amount: testutil.Dec("1"), Address: "D8x", PIN: "1234",
	})
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedCurrency))
}

func TestTransfer_DirectSettlement(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	ctx := context.Background()
	bob := testutil.SeedUser(t, e.db, "bob@example.com", "5678")

	receipt, err := e.svc.Transfer(ctx, payment.TransferRequest{
		UserID: e.user.ID, RecipientID: bob.ID, Asset: "ngnz", Amount: testutil.Dec("2500"), PIN: "1234",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Pending)
	assert.Equal(t, models.StatusCompleted, receipt.Transaction.Status)
	assert.Equal(t, models.ModeDirect, receipt.Transaction.Mode)
	assert.Equal(t, models.CategorySettlement, receipt.Transaction.Category)

	avail, _ := e.balance(t, e.user.ID)
	assert.Equal(t, "7500", avail)
	avail, _ = e.balance(t, bob.ID)
	assert.Equal(t, "2500", avail)
}

func TestTransfer_Rejections(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	ctx := context.Background()

	_, err := e.svc.Transfer(ctx, payment.TransferRequest{
		UserID: e.user.ID, RecipientID: 999, Asset: "NGNZ", Amount: testutil.Dec("10"), PIN: "1234",
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = e.svc.Transfer(ctx, payment.TransferRequest{
		UserID: e.user.ID, RecipientID: e.user.ID, Asset: "NGNZ", Amount: testutil.Dec("10"), PIN: "1234",
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	bob := testutil.SeedUser(t, e.db, "bob@example.com", "5678")
	_, err = e.svc.Transfer(ctx, payment.TransferRequest{
		UserID: e.user.ID, RecipientID: bob.ID, Asset: "NGNZ", Amount: testutil.Dec("50000"), PIN: "1234",
	})
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))

	avail, pending := e.balance(t, e.user.ID)
	assert.Equal(t, "10000", avail)
	assert.Equal(t, "0", pending)
}

func TestTransfer_BalanceSpentConcurrently(t *testing.T) {
	e := newEnv(t, nil, payment.Config{})
	ctx := context.Background()
	bob := testutil.SeedUser(t, e.db, "bob@example.com", "5678")

	l := ledger.New(e.store.Balances, nil)
	svc := payment.NewService(payment.Dependencies{
		Users:        e.store.Users,
		Transactions: e.store.Transactions,
		Balances:     l,
		Limits:       limits{},
		Machine:      transaction.NewProcessor(transaction.ProcessorConfig{Store: e.store, Ledger: l}),
		Adapters:     settlement.NewRegistry(drainingPeer{db: e.db}),
	}, payment.Config{})

	_, err := svc.Transfer(ctx, payment.TransferRequest{
		UserID: e.user.ID, RecipientID: bob.ID, Asset: "NGNZ", Amount: testutil.Dec("2500"), PIN: "1234",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientBalance))
	assert.Equal(t, 422, apperrors.HTTPStatus(err))

	txns, _, err := e.store.Transactions.ListByUser(ctx, e.user.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.StatusFailed, txns[0].Status)
	assert.False(t, txns[0].NeedsReconciliation)

	_, err = e.store.Balances.Get(ctx, bob.ID, models.AssetNGNZ)
	assert.ErrorIs(t, err, repositories.ErrNotFound, "recipient never credited")
}
