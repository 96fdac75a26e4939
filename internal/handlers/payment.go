package handlers

import (
	"kudi/internal/services/payment"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	payments payment.Service
	logger   *zap.Logger
}

func NewPaymentHandler(payments payment.Service, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: orNop(logger)}
}

// Purchase buys airtime, data or a utility token.
func (h *PaymentHandler) Purchase(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input payment.PurchaseRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	input.UserID = claims.UserID

	receipt, err := h.payments.Purchase(c.UserContext(), input)
	return h.respond(c, receipt, err)
}

// Withdraw sends funds off-platform.
func (h *PaymentHandler) Withdraw(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input payment.WithdrawRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	input.UserID = claims.UserID

	receipt, err := h.payments.Withdraw(c.UserContext(), input)
	return h.respond(c, receipt, err)
}

// Transfer moves funds to another user.
func (h *PaymentHandler) Transfer(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input payment.TransferRequest
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}
	input.UserID = claims.UserID

	receipt, err := h.payments.Transfer(c.UserContext(), input)
	return h.respond(c, receipt, err)
}

// respond answers 202 while the provider still owes an outcome and 201 once
// the transaction settled synchronously.
func (h *PaymentHandler) respond(c *fiber.Ctx, receipt *payment.Receipt, err error) error {
	if err != nil {
		return utils.Error(c, h.logger, err)
	}
	if receipt.Pending {
		return utils.Accepted(c, receipt)
	}
	return utils.Created(c, receipt)
}
