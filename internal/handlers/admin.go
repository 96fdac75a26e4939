package handlers

import (
	"context"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/services/kyc"
	"kudi/internal/services/transaction"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Crediter funds a balance.
type Crediter interface {
	Credit(ctx context.Context, userID uint, asset models.Asset, amount decimal.Decimal) error
}

// FlaggedLister pages through transactions awaiting manual reconciliation.
type FlaggedLister interface {
	Flagged(ctx context.Context, limit, offset int) ([]models.Transaction, int64, error)
}

// SweepRunner resolves stale in-flight transactions on demand.
type SweepRunner interface {
	Sweep(ctx context.Context) (transaction.SweepReport, error)
}

type AdminHandler struct {
	ledger   Crediter
	flagged  FlaggedLister
	verifier VerificationApplier
	sweeper  SweepRunner
	logger   *zap.Logger
}

func NewAdminHandler(ledger Crediter, flagged FlaggedLister, verifier VerificationApplier, sweeper SweepRunner, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		flagged:  flagged,
		verifier: verifier,
		sweeper:  sweeper,
		logger:   orNop(logger),
	}
}

// CreditBalance funds a user's balance, e.g. after an off-platform deposit.
func (h *AdminHandler) CreditBalance(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		UserID uint            `json:"user_id"`
		Asset  string          `json:"asset"`
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	if input.UserID == 0 {
		return utils.BadRequest(c, "user_id is required")
	}
	if !input.Amount.IsPositive() {
		return utils.BadRequest(c, "amount must be greater than 0")
	}
	asset, err := models.ParseAsset(input.Asset)
	if err != nil {
		return utils.Error(c, h.logger, apperrors.ErrUnsupportedCurrency.WithDetails(map[string]interface{}{
			"currency": input.Asset,
		}))
	}

	if err := h.ledger.Credit(c.UserContext(), input.UserID, asset, input.Amount); err != nil {
		return utils.Error(c, h.logger, err)
	}
	h.logger.Info("balance credited by admin",
		zap.Uint("admin_id", claims.UserID),
		zap.Uint("user_id", input.UserID),
		zap.String("asset", asset.String()),
		zap.String("amount", input.Amount.String()),
		zap.String("reason", input.Reason))
	return utils.Success(c, fiber.Map{"credited": true})
}

// ListFlagged returns transactions that need manual reconciliation.
func (h *AdminHandler) ListFlagged(c *fiber.Ctx) error {
	page := pageOf(c)
	txns, total, err := h.flagged.Flagged(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	page.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(txns, page))
}

// SubmitKYCResult records a vendor decision entered by an operator.
func (h *AdminHandler) SubmitKYCResult(c *fiber.Ctx) error {
	var input kyc.VerificationResult
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	if input.Provider == "" || input.Code == "" {
		return utils.BadRequest(c, "provider and code are required")
	}

	profile, outcome, err := h.verifier.ApplyResult(c.UserContext(), input)
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"outcome": outcome, "profile": profile})
}

// RunSweep resolves stale in-flight transactions now instead of waiting for
// the next scheduled pass.
func (h *AdminHandler) RunSweep(c *fiber.Ctx) error {
	report, err := h.sweeper.Sweep(c.UserContext())
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"report": report})
}
