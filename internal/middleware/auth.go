// Package middleware provides HTTP middleware components for the application.
package middleware

import (
	"context"
	"strings"

	"kudi/internal/models"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UserSource resolves the user behind a token.
type UserSource interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// AuthMiddleware handles JWT token validation and user authentication.
// It extracts the JWT token from the Authorization header, validates it,
// and adds the user claims to the request context.
type AuthMiddleware struct {
	secret string
	users  UserSource
	logger *zap.Logger
}

func NewAuthMiddleware(secret string, users UserSource, logger *zap.Logger) *AuthMiddleware {
	if users == nil {
		panic("user source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{secret: secret, users: users, logger: logger}
}

// Handler validates JWT tokens and adds claims to the request context.
// It checks for:
// - Presence of Authorization header with Bearer token
// - Valid JWT signature and expiry
// - Token version matches current user version
// - The user is still active
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return utils.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return utils.Unauthorized(c, "invalid authorization format")
	}

	claims, err := utils.ParseToken(m.secret, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		m.logger.Debug("token validation failed", zap.Error(err))
		return utils.Unauthorized(c, "invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		m.logger.Warn("user from token not found", zap.Uint("user_id", claims.UserID), zap.Error(err))
		return utils.Unauthorized(c, "invalid token")
	}
	if claims.TokenVersion != user.TokenVersion {
		m.logger.Info("token version mismatch",
			zap.Uint("user_id", claims.UserID),
			zap.Int("token_version", claims.TokenVersion),
			zap.Int("current_version", user.TokenVersion))
		return utils.Unauthorized(c, "session expired")
	}
	if user.Status != models.UserStatusActive {
		return utils.Unauthorized(c, "account is not active")
	}

	// the role on record wins over whatever was signed into the token
	claims.Role = user.Role

	c.Locals("claims", claims)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// AdminAuthMiddleware verifies that the request has valid admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return utils.Unauthorized(c, "invalid claims")
	}
	if !claims.IsAdmin() {
		return utils.Forbidden(c, "insufficient permissions")
	}
	return c.Next()
}
