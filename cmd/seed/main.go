package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/lava-community/pwa-api/internal/config"
	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/models"
	"github.com/lava-community/pwa-api/internal/repository"
	"github.com/lava-community/pwa-api/internal/service"
)

func main() {
	var devUser string
	flag.StringVar(&devUser, "dev-user", "dev-user-1", "开发令牌对应的用户 ID，留空则不签发")
	flag.Parse()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, logger.NewGormLogger(cfg.Log.SQLLevel)); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	ctx := context.Background()
	codeRepo := repository.NewReferralCodeRepository(models.DB)
	expired := time.Now().UTC().Add(-24 * time.Hour)
	codes := []models.ReferralCode{
		{Code: "LAVA01", ReferrerUserID: "seed-referrer-1", ReferrerEmail: "referrer1@example.com", Status: constants.ReferralCodeStatusApproved},
		{Code: "LAVA02", ReferrerUserID: "seed-referrer-2", ReferrerEmail: "referrer2@example.com", Status: constants.ReferralCodeStatusApproved},
		{Code: "PENDING01", ReferrerUserID: "seed-referrer-3", ReferrerEmail: "referrer3@example.com", Status: constants.ReferralCodeStatusPending},
		{Code: "EXPIRED01", ReferrerUserID: "seed-referrer-4", ReferrerEmail: "referrer4@example.com", Status: constants.ReferralCodeStatusApproved, ExpiresAt: &expired},
	}

	for i := range codes {
		code := codes[i]
		existing, err := codeRepo.GetByCode(ctx, code.Code)
		if err != nil {
			stdLog.Printf("Failed to check referral code %s: %v", code.Code, err)
			continue
		}
		if existing != nil {
			stdLog.Printf("Referral code already exists: %s (%s)", existing.Code, existing.Status)
			continue
		}
		if err := codeRepo.Create(ctx, &code); err != nil {
			stdLog.Printf("Failed to create referral code %s: %v", code.Code, err)
			continue
		}
		stdLog.Printf("Created referral code: %s (%s)", code.Code, code.Status)
	}

	devUser = strings.TrimSpace(devUser)
	if devUser == "" {
		return
	}
	verifier, err := service.NewJWTIdentityVerifier(cfg.Identity)
	if err != nil {
		stdLog.Fatalf("Failed to build identity verifier: %v", err)
	}
	token, err := verifier.IssueToken(service.Identity{UserID: devUser, Email: devUser + "@example.com"}, 24*time.Hour)
	if err != nil {
		stdLog.Printf("Skip dev token: %v", err)
		return
	}
	stdLog.Printf("Dev bearer token for %s (24h): %s", devUser, token)
}
