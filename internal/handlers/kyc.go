package handlers

import (
	"context"
	"errors"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/services/kyc"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LimitEngine answers limit questions for a user.
type LimitEngine interface {
	Validate(ctx context.Context, userID uint, amount decimal.Decimal, currency string, category models.LimitCategory) (*kyc.LimitCheck, error)
	Status(ctx context.Context, userID uint, category models.LimitCategory) (*kyc.LimitCheck, error)
}

// ProfileReader loads a user's verification profile.
type ProfileReader interface {
	GetByUserID(ctx context.Context, userID uint) (*models.KYCProfile, error)
}

type KYCHandler struct {
	engine   LimitEngine
	profiles ProfileReader
	logger   *zap.Logger
}

func NewKYCHandler(engine LimitEngine, profiles ProfileReader, logger *zap.Logger) *KYCHandler {
	return &KYCHandler{engine: engine, profiles: profiles, logger: orNop(logger)}
}

// GetLimits reports the caller's caps and remaining headroom per category.
func (h *KYCHandler) GetLimits(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	categories := []models.LimitCategory{models.CategoryUtility, models.CategoryCrypto, models.CategorySettlement}
	if raw := c.Query("category"); raw != "" {
		category := models.LimitCategory(raw)
		if !category.Valid() {
			return utils.BadRequest(c, "unknown limit category")
		}
		categories = []models.LimitCategory{category}
	}

	limits := make([]*kyc.LimitCheck, 0, len(categories))
	for _, category := range categories {
		status, err := h.engine.Status(c.UserContext(), claims.UserID, category)
		if err != nil {
			return utils.Error(c, h.logger, err)
		}
		limits = append(limits, status)
	}
	return utils.Success(c, fiber.Map{"limits": limits})
}

// PreviewLimit runs a limit check without creating a transaction.
func (h *KYCHandler) PreviewLimit(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	var input struct {
		Amount   decimal.Decimal      `json:"amount"`
		Currency string               `json:"currency"`
		Category models.LimitCategory `json:"category"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.BadRequest(c, "invalid request format")
	}

	check, err := h.engine.Validate(c.UserContext(), claims.UserID, input.Amount, input.Currency, input.Category)
	if err != nil {
		if de, ok := apperrors.As(err); ok && errors.Is(err, apperrors.ErrLimitExceeded) {
			// a denial is the answer to a preview, not a failure of it
			return utils.Success(c, fiber.Map{"allowed": false, "code": de.Code, "message": de.Message, "details": de.Details})
		}
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"allowed": true, "check": check})
}

// GetProfile returns the caller's verification profile.
func (h *KYCHandler) GetProfile(c *fiber.Ctx) error {
	claims, err := extractUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}

	profile, err := h.profiles.GetByUserID(c.UserContext(), claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return utils.Success(c, fiber.Map{"profile": models.KYCProfile{UserID: claims.UserID, Status: models.KYCStatusNone}})
		}
		return utils.Error(c, h.logger, err)
	}
	return utils.Success(c, fiber.Map{"profile": profile})
}
