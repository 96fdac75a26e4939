package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/handlers"
	"kudi/internal/models"
	"kudi/internal/services/kyc"
	"kudi/internal/services/transaction"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Credit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error {
	return m.Called(ctx, userID, asset, amount).Error(0)
}

type mockFlagged struct{ mock.Mock }

func (m *mockFlagged) Flagged(ctx context.Context, limit, offset int) ([]models.Transaction, int64, error) {
	args := m.Called(ctx, limit, offset)
	txns, _ := args.Get(0).([]models.Transaction)
	return txns, args.Get(1).(int64), args.Error(2)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) ApplyResult(ctx context.Context, r kyc.VerificationResult) (*models.KYCProfile, kyc.Outcome, error) {
	args := m.Called(ctx, r)
	profile, _ := args.Get(0).(*models.KYCProfile)
	return profile, args.Get(1).(kyc.Outcome), args.Error(2)
}

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) Sweep(ctx context.Context) (transaction.SweepReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(transaction.SweepReport), args.Error(1)
}

type adminDeps struct {
	ledger   *mockLedger
	flagged  *mockFlagged
	verifier *mockVerifier
	sweeper  *mockSweeper
}

func adminApp() (*fiber.App, *adminDeps) {
	d := &adminDeps{ledger: &mockLedger{}, flagged: &mockFlagged{}, verifier: &mockVerifier{}, sweeper: &mockSweeper{}}
	h := handlers.NewAdminHandler(d.ledger, d.flagged, d.verifier, d.sweeper, nil)
	app := fiber.New()
	app.Use(withClaims(1, models.RoleAdmin))
	app.Post("/balances/credit", h.CreditBalance)
	app.Get("/reconciliation", h.ListFlagged)
	app.Post("/reconciliation/sweep", h.RunSweep)
	app.Post("/kyc/results", h.SubmitKYCResult)
	return app, d
}

func TestAdmin_CreditBalance(t *testing.T) {
	app, d := adminApp()
	d.ledger.On("Credit", mock.Anything, uint(9), models.AssetUSDT, mock.MatchedBy(func(a decimal.Decimal) bool {
		return a.Equal(decimal.RequireFromString("25.5"))
	})).Return(nil)

	status, body := call(t, app, jsonRequest(http.MethodPost, "/balances/credit",
		`{"user_id":9,"asset":"usdt","amount":"25.5","reason":"bank deposit"}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["credited"])
	d.ledger.AssertExpectations(t)
}

func TestAdmin_CreditBalanceRejectsBadInput(t *testing.T) {
	app, d := adminApp()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"user_id":`, "VALIDATION_ERROR"},
		{"missing user", `{"asset":"NGNZ","amount":"10"}`, "VALIDATION_ERROR"},
		{"zero amount", `{"user_id":9,"asset":"NGNZ","amount":"0"}`, "VALIDATION_ERROR"},
		{"negative amount", `{"user_id":9,"asset":"NGNZ","amount":"-5"}`, "VALIDATION_ERROR"},
		{"unknown asset", `{"user_id":9,"asset":"DOGE","amount":"10"}`, "UNSUPPORTED_CURRENCY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, app, jsonRequest(http.MethodPost, "/balances/credit", tt.body))
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.code, body["code"])
		})
	}
	d.ledger.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdmin_CreditBalanceStorageFailure(t *testing.T) {
	app, d := adminApp()
	d.ledger.On("Credit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("deadlock detected"))

	status, body := call(t, app, jsonRequest(http.MethodPost, "/balances/credit",
		`{"user_id":9,"asset":"NGNZ","amount":"10"}`))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["error"])
}

func TestAdmin_ListFlagged(t *testing.T) {
	app, d := adminApp()
	d.flagged.On("Flagged", mock.Anything, transaction.MaxPageSize, transaction.MaxPageSize).Return(
		[]models.Transaction{{ID: "tx-9", NeedsReconciliation: true}}, int64(101), nil)

	status, body := call(t, app, httptest.NewRequest(http.MethodGet, "/reconciliation?page=2&limit=1000", nil))
	assert.Equal(t, http.StatusOK, status)
	page := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 101, page["total"])
	d.flagged.AssertExpectations(t)
}

func TestAdmin_RunSweep(t *testing.T) {
	app, d := adminApp()
	d.sweeper.On("Sweep", mock.Anything).Return(transaction.SweepReport{Scanned: 3, Failed: 2, Completed: 1}, nil).Once()

	status, body := call(t, app, httptest.NewRequest(http.MethodPost, "/reconciliation/sweep", nil))
	assert.Equal(t, http.StatusOK, status)
	report := body["report"].(map[string]interface{})
	assert.EqualValues(t, 3, report["scanned"])
	assert.EqualValues(t, 2, report["failed"])

	d.sweeper.On("Sweep", mock.Anything).Return(transaction.SweepReport{}, errors.New("connection refused"))
	status, _ = call(t, app, httptest.NewRequest(http.MethodPost, "/reconciliation/sweep", nil))
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestAdmin_SubmitKYCResult(t *testing.T) {
	app, d := adminApp()
	d.verifier.On("ApplyResult", mock.Anything, kyc.VerificationResult{
		UserID: 4, Provider: "manual", Code: "approved", TargetLevel: 2,
	}).Return(&models.KYCProfile{UserID: 4, Level: 2, Status: models.KYCStatusApproved}, kyc.OutcomeApproved, nil)

	status, body := call(t, app, jsonRequest(http.MethodPost, "/kyc/results",
		`{"user_id":4,"provider":"manual","code":"approved","target_level":2}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(kyc.OutcomeApproved), body["outcome"])
	profile := body["profile"].(map[string]interface{})
	assert.EqualValues(t, 2, profile["level"])

	status, body = call(t, app, jsonRequest(http.MethodPost, "/kyc/results", `{"user_id":4,"provider":"manual"}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
	d.verifier.AssertNumberOfCalls(t, "ApplyResult", 1)
}

func TestAdmin_SubmitKYCResultValidationError(t *testing.T) {
	app, d := adminApp()
	d.verifier.On("ApplyResult", mock.Anything, mock.Anything).
		Return(nil, kyc.Outcome(""), apperrors.ErrValidation.WithMessage("unknown user 77"))

	status, body := call(t, app, jsonRequest(http.MethodPost, "/kyc/results",
		`{"user_id":77,"provider":"manual","code":"approved"}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown user 77", body["error"])
}

const identitySecret = "whsec_handlers"

func stripeRequest(t *testing.T, secret, payload string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))

	req := jsonRequest(http.MethodPost, "/webhooks/stripe-identity", payload)
	req.Header.Set(handlers.HeaderStripeSignature, fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return req
}

func identityApp(verifier handlers.VerificationApplier) *fiber.App {
	h := handlers.NewWebhookHandler(&fakeReconciler{}, kyc.NewStripeIdentity(identitySecret), verifier, nil)
	app := fiber.New()
	app.Post("/webhooks/stripe-identity", h.StripeIdentity)
	return app
}

func sessionPayload(eventType, status, metadata string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"vs_1","object":"identity.verification_session","status":%q,"metadata":%s}}}`,
		eventType, status, metadata)
}

func TestStripeIdentity_Verified(t *testing.T) {
	verifier := &mockVerifier{}
	verifier.On("ApplyResult", mock.Anything, mock.MatchedBy(func(r kyc.VerificationResult) bool {
		return r.UserID == 42 && r.Code == "verified" && r.TargetLevel == 3
	})).Return(&models.KYCProfile{UserID: 42, Level: 3}, kyc.OutcomeApproved, nil)

	payload := sessionPayload("identity.verification_session.verified", "verified", `{"user_id":"42","target_level":"3"}`)
	status, body := call(t, identityApp(verifier), stripeRequest(t, identitySecret, payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(kyc.OutcomeApproved), body["outcome"])
	verifier.AssertExpectations(t)
}

func TestStripeIdentity_IgnoredEvent(t *testing.T) {
	verifier := &mockVerifier{}
	payload := `{"id":"evt_2","object":"event","type":"charge.succeeded","data":{"object":{}}}`

	status, body := call(t, identityApp(verifier), stripeRequest(t, identitySecret, payload))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ignored"])
	verifier.AssertNotCalled(t, "ApplyResult", mock.Anything, mock.Anything)
}

func TestStripeIdentity_Rejections(t *testing.T) {
	verifier := &mockVerifier{}
	app := identityApp(verifier)
	verified := sessionPayload("identity.verification_session.verified", "verified", `{"user_id":"42"}`)

	status, body := call(t, app, stripeRequest(t, "whsec_wrong", verified))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_SIGNATURE", body["code"])

	noUser := sessionPayload("identity.verification_session.verified", "verified", `{}`)
	status, body = call(t, app, stripeRequest(t, identitySecret, noUser))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MALFORMED_PAYLOAD", body["code"])

	verifier.AssertNotCalled(t, "ApplyResult", mock.Anything, mock.Anything)
}

func TestStripeIdentity_ValidationErrorIs400(t *testing.T) {
	verifier := &mockVerifier{}
	verifier.On("ApplyResult", mock.Anything, mock.Anything).
		Return(nil, kyc.Outcome(""), apperrors.ErrValidation.WithMessage("target level 9 is not configured"))

	payload := sessionPayload("identity.verification_session.verified", "verified", `{"user_id":"42","target_level":"9"}`)
	status, body := call(t, identityApp(verifier), stripeRequest(t, identitySecret, payload))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MALFORMED_PAYLOAD", body["code"])
	assert.Contains(t, body["error"], "target level 9")
}

func TestStripeIdentity_StorageFailureIs500(t *testing.T) {
	verifier := &mockVerifier{}
	verifier.On("ApplyResult", mock.Anything, mock.Anything).
		Return(nil, kyc.Outcome(""), errors.New("database is closed"))

	payload := sessionPayload("identity.verification_session.verified", "verified", `{"user_id":"42"}`)
	status, _ := call(t, identityApp(verifier), stripeRequest(t, identitySecret, payload))
	assert.Equal(t, http.StatusInternalServerError, status)
}
