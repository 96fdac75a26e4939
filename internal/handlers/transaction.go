package handlers

import (
	"context"

	"kudi/internal/models"
	"kudi/internal/services/transaction"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TransactionReader serves a user's own transactions.
type TransactionReader interface {
	GetForUser(ctx context.Context, userID uint, id string) (*models.Transaction, error)
	History(ctx context.Context, userID uint, limit, offset int) ([]models.Transaction, int64, error)
}

type TransactionHandler struct {
	transactions TransactionReader
	logger       *zap.Logger
}

func NewTransactionHandler(transactions TransactionReader, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, logger: orNop(logger)}
}

func (h *TransactionHandler) GetTransaction(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	txn, err := h.transactions.GetForUser(c.UserContext(), claims.UserID, c.Params("id"))
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"transaction": txn})
}

func (h *TransactionHandler) ListTransactions(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	page := pageOf(c)
	txns, total, err := h.transactions.History(c.UserContext(), claims.UserID, page.Limit, page.Offset)
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	page.SetTotal(total)
	return utils.Success(c, utils.NewPaginatedResponse(txns, page))
}

func pageOf(c *fiber.Ctx) utils.Pagination {
	page := utils.GetPagination(c, 1, transaction.DefaultPageSize)
	if page.Limit > transaction.MaxPageSize {
		page.Limit = transaction.MaxPageSize
		page.Offset = (page.Page - 1) * page.Limit
	}
	return page
}
