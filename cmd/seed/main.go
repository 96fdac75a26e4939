// Command seed creates a wallet user with a transaction PIN, a KYC level and
// opening balances, then prints an access token for it. It is meant for
// local and staging environments.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"kudi/internal/config"
	"kudi/internal/logger"
	"kudi/internal/models"
	"kudi/internal/repositories"
	"kudi/internal/services/ledger"
	"kudi/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	email := os.Getenv("SEED_EMAIL")
	pin := os.Getenv("SEED_PIN")
	if email == "" || pin == "" {
		log.Fatal("SEED_EMAIL and SEED_PIN must be set in environment")
	}
	balances, err := parseBalances(config.GetEnv("SEED_BALANCES", "NGNZ=50000"))
	if err != nil {
		log.Fatal("invalid SEED_BALANCES", zap.Error(err))
	}

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := repositories.CloseDB(db); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}()

	ctx := context.Background()
	user, err := seedUser(ctx, db, email, pin, config.GetEnv("SEED_ROLE", models.RoleUser))
	if err != nil {
		log.Fatal("failed to seed user", zap.Error(err))
	}

	level := config.GetIntEnv("SEED_KYC_LEVEL", 1)
	if err := seedKYC(ctx, db, user.ID, level); err != nil {
		log.Fatal("failed to seed kyc profile", zap.Error(err))
	}

	l := ledger.New(repositories.NewBalanceRepository(db), nil)
	for asset, amount := range balances {
		if err := l.Credit(ctx, user.ID, asset, amount); err != nil {
			log.Fatal("failed to credit balance", zap.String("asset", asset.String()), zap.Error(err))
		}
	}

	token, err := utils.GenerateToken(cfg.JWTSecret, user, config.GetDurationEnv("SEED_TOKEN_TTL", 24*time.Hour))
	if err != nil {
		log.Fatal("failed to sign token", zap.Error(err))
	}
	log.Info("seeded user",
		zap.Uint("user_id", user.ID),
		zap.String("email", user.Email),
		zap.String("role", user.Role),
		zap.Int("kyc_level", level))
	fmt.Println(token)
}

func seedUser(ctx context.Context, db *gorm.DB, email, pin, role string) (*models.User, error) {
	users := repositories.NewUserRepository(db)
	user, err := users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	user = &models.User{Email: email, Role: role, Status: models.UserStatusActive, TokenVersion: 1}
	if err := user.SetPIN(pin); err != nil {
		return nil, err
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func seedKYC(ctx context.Context, db *gorm.DB, userID uint, level int) error {
	now := time.Now().UTC()
	profile := models.KYCProfile{
		UserID:     userID,
		Level:      level,
		Status:     models.KYCStatusApproved,
		Provider:   "seed",
		VerifiedAt: &now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"level", "status", "provider", "verified_at", "updated_at"}),
	}).Create(&profile).Error
}

// parseBalances reads "NGNZ=50000,USDT=25".
func parseBalances(raw string) (map[models.Asset]decimal.Decimal, error) {
	out := make(map[models.Asset]decimal.Decimal)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("expected ASSET=AMOUNT, got %q", part)
		}
		asset, err := models.ParseAsset(name)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("invalid amount for %s: %q", asset, value)
		}
		out[asset] = amount
	}
	return out, nil
}
