// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"kudi/internal/models"
	"kudi/internal/repositories"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns an isolated in-memory database with the schema migrated.
// A single connection keeps sqlite from reporting lock contention.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repositories.AutoMigrate(db))
	return db
}

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedBalance writes a balance row directly.
func SeedBalance(t testing.TB, db *gorm.DB, userID uint, asset models.Asset, available, pending string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Balance{
		UserID:    userID,
		Asset:     asset,
		Available: Dec(available),
		Pending:   Dec(pending),
	}).Error)
}

// SeedUser creates a user with the given transaction PIN.
func SeedUser(t testing.TB, db *gorm.DB, email, pin string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Name: email, Role: models.RoleUser}
	require.NoError(t, u.SetPIN(pin))
	require.NoError(t, db.Create(u).Error)
	return u
}

// SeedKYC gives userID an approved profile at level.
func SeedKYC(t testing.TB, db *gorm.DB, userID uint, level int) {
	t.Helper()
	require.NoError(t, db.Create(&models.KYCProfile{
		UserID: userID,
		Level:  level,
		Status: models.KYCStatusApproved,
	}).Error)
}
