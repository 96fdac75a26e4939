package utils

import (
	apperrors "kudi/internal/errors"
	"kudi/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetUserClaims extracts the user claims placed on the context by the auth
// middleware.
func GetUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	v := c.Locals("claims")
	if v == nil {
		return nil, apperrors.ErrUnauthorized.WithMessage("claims not found in context")
	}

	claims, ok := v.(*models.UserClaims)
	if !ok {
		return nil, apperrors.ErrUnauthorized.WithMessage("invalid claims type")
	}
	return claims, nil
}
