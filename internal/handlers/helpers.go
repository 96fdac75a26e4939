package handlers

import (
	"errors"

	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// extractUserClaims is a helper function to reduce duplication
func extractUserClaims(c *fiber.Ctx) (*models.UserClaims, error) {
	return utils.GetUserClaims(c)
}

func isNotFound(err error) bool {
	return errors.Is(err, repositories.ErrNotFound)
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
