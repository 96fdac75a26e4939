package handlers

import (
	"context"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BalanceReader is the read side of the ledger.
type BalanceReader interface {
	Balances(ctx context.Context, userID uint) ([]models.Balance, error)
	Balance(ctx context.Context, userID uint, asset models.Asset) (*models.Balance, error)
}

type WalletHandler struct {
	balances BalanceReader
	logger   *zap.Logger
}

func NewWalletHandler(balances BalanceReader, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{balances: balances, logger: orNop(logger)}
}

func (h *WalletHandler) GetBalances(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	balances, err := h.balances.Balances(c.UserContext(), claims.UserID)
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"balances": balances})
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	asset, err := models.ParseAsset(c.Params("asset"))
	if err != nil {
		return utils.Error(c, h.logger, apperrors.ErrUnsupportedCurrency.WithDetails(map[string]interface{}{
			"currency": c.Params("asset"),
		}))
	}

	balance, err := h.balances.Balance(c.UserContext(), claims.UserID, asset)
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"balance": balance})
}
