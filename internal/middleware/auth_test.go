package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret"

type users map[uint]*models.User

func (u users) GetByID(_ context.Context, id uint) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, repositories.ErrNotFound
}

func newUser(id uint, role string) *models.User {
	return &models.User{Model: gorm.Model{ID: id}, Email: "u@example.com", Role: role, Status: models.UserStatusActive, TokenVersion: 1}
}

func app(known users) *fiber.App {
	auth := NewAuthMiddleware(secret, known, nil)
	a := fiber.New()
	a.Use(auth.Handler)
	a.Get("/me", func(c *fiber.Ctx) error {
		claims, err := utils.GetUserClaims(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": claims.UserID, "role": claims.Role})
	})
	a.Get("/admin", AdminAuthMiddleware, func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	return a
}

func get(t *testing.T, a *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, u, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestAuth_MissingOrMalformedHeader(t *testing.T) {
	a := app(users{})
	assert.Equal(t, http.StatusUnauthorized, get(t, a, "/me", ""))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	resp, err := a.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ValidToken(t *testing.T) {
	u := newUser(1, models.RoleUser)
	a := app(users{1: u})
	assert.Equal(t, http.StatusOK, get(t, a, "/me", token(t, u)))
	assert.Equal(t, http.StatusForbidden, get(t, a, "/admin", token(t, u)))
}

func TestAuth_RejectsStaleOrForeignTokens(t *testing.T) {
	u := newUser(1, models.RoleUser)
	tok := token(t, u)

	bumped := newUser(1, models.RoleUser)
	bumped.TokenVersion = 2
	assert.Equal(t, http.StatusUnauthorized, get(t, app(users{1: bumped}), "/me", tok))

	suspended := newUser(1, models.RoleUser)
	suspended.Status = models.UserStatusSuspended
	assert.Equal(t, http.StatusUnauthorized, get(t, app(users{1: suspended}), "/me", tok))

	assert.Equal(t, http.StatusUnauthorized, get(t, app(users{}), "/me", tok))

	forged, err := utils.GenerateToken("other-secret", u, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, app(users{1: u}), "/me", forged))

	expired, err := utils.GenerateToken(secret, u, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(t, app(users{1: u}), "/me", expired))
}

func TestAuth_RoleComesFromRecord(t *testing.T) {
	signedAsUser := newUser(2, models.RoleUser)
	tok := token(t, signedAsUser)

	promoted := newUser(2, models.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, get(t, app(users{2: promoted}), "/admin", tok))
}
