package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/models"
	"github.com/lava-community/pwa-api/internal/repository"

	"gorm.io/gorm"
)

// errReferralAlreadyAttributed 事务内唯一约束冲突，用于回滚并转为软失败
var errReferralAlreadyAttributed = errors.New("referral already attributed")

// errReferralCodeRevoked 事务内复核发现推荐码已不可用（快照过期），转为 code_not_approved
var errReferralCodeRevoked = errors.New("referral code revoked")

// referralCodeSnapshotInvalidator 带快照的推荐码仓储实现，复核失败时清理旧快照
type referralCodeSnapshotInvalidator interface {
	InvalidateSnapshot(ctx context.Context, code string)
}

// Identity 已校验的调用方身份
type Identity struct {
	UserID string
	Email  string
}

// ConvertInput 归因转化输入
type ConvertInput struct {
	Identity      Identity
	ReferralData  ReferralData
	WalletAddress string
	Headers       http.Header
}

// ConvertResult 归因转化结果，未归因时 Reason 非空
type ConvertResult struct {
	Attributed bool
	Reason     string
}

// ReferralAttributionService 将匹配到的推荐参数落为永久归因
type ReferralAttributionService struct {
	codeRepo     repository.ReferralCodeRepository
	referralRepo repository.UserReferralRepository
	visitRepo    repository.ReferralVisitRepository
	setting      ReferralSetting
	metrics      *metrics.ReferralMetrics
	now          func() time.Time
}

// NewReferralAttributionService 创建归因服务
func NewReferralAttributionService(
	codeRepo repository.ReferralCodeRepository,
	referralRepo repository.UserReferralRepository,
	visitRepo repository.ReferralVisitRepository,
	setting ReferralSetting,
	m *metrics.ReferralMetrics,
) *ReferralAttributionService {
	return &ReferralAttributionService{
		codeRepo:     codeRepo,
		referralRepo: referralRepo,
		visitRepo:    visitRepo,
		setting:      NormalizeReferralSetting(setting),
		metrics:      m,
		now:          time.Now,
	}
}

// Convert 为已登录用户写入归因记录，同一用户至多成功一次
func (s *ReferralAttributionService) Convert(ctx context.Context, input ConvertInput) (ConvertResult, error) {
	if !s.setting.Enabled {
		return s.skip(constants.ReferralConvertReasonDisabled), nil
	}
	userID := strings.TrimSpace(input.Identity.UserID)
	if userID == "" {
		return ConvertResult{}, ErrIdentityRequired
	}
	code := normalizeReferralCode(input.ReferralData.Ref)
	if code == "" {
		return ConvertResult{}, ErrReferralCodeRequired
	}
	capturedAt, err := parseCapturedAt(input.ReferralData.CapturedAt)
	if err != nil {
		return ConvertResult{}, err
	}
	if capturedAt == nil {
		return ConvertResult{}, ErrReferralCapturedAt
	}

	now := s.now().UTC()
	if now.Sub(*capturedAt) > s.setting.AttributionExpiry() {
		return s.skip(constants.ReferralConvertReasonExpired), nil
	}

	referralCode, err := s.codeRepo.GetByCode(ctx, code)
	if err != nil {
		return s.fail(err)
	}
	if !isReferralCodeUsable(referralCode, now) {
		return s.skip(constants.ReferralConvertReasonCodeNotApproved), nil
	}

	existing, err := s.referralRepo.GetByUserID(ctx, userID)
	if err != nil {
		return s.fail(err)
	}
	if existing != nil {
		return s.skip(constants.ReferralConvertReasonAlreadyAttributed), nil
	}

	clientIP := ResolveClientIP(input.Headers)
	record := &models.UserReferral{
		UserID:         userID,
		UserEmail:      strings.TrimSpace(input.Identity.Email),
		ReferralCodeID: referralCode.ID,
		ReferralCode:   referralCode.Code,
		CustomTag:      truncateRunes(strings.TrimSpace(input.ReferralData.Tag), constants.ReferralLabelMaxRunes),
		Source:         truncateRunes(strings.TrimSpace(input.ReferralData.Source), constants.ReferralLabelMaxRunes),
		FullParams:     SanitizeFullParams(input.ReferralData.FullParams),
		WalletAddress:  truncateRunes(strings.TrimSpace(input.WalletAddress), constants.ReferralWalletAddrMaxRunes),
		ClientIP:       clientIP,
		ConvertedAt:    now,
		CreatedAt:      now,
	}

	err = s.codeRepo.Transaction(ctx, func(tx *gorm.DB) error {
		// 事务内直接读库复核状态，前置检查可能命中缓存快照
		current, err := s.codeRepo.WithTx(tx).GetByCode(ctx, referralCode.Code)
		if err != nil {
			return err
		}
		if !isReferralCodeUsable(current, now) {
			return errReferralCodeRevoked
		}
		if err := s.referralRepo.WithTx(tx).Create(ctx, record); err != nil {
			if isUniqueViolation(err) {
				return errReferralAlreadyAttributed
			}
			return err
		}
		if err := s.codeRepo.WithTx(tx).IncrementUsage(ctx, referralCode.ID); err != nil {
			return err
		}
		if s.setting.ConsumeVisitOnConvert && s.visitRepo != nil && clientIP != "" {
			ua := truncateRunes(strings.TrimSpace(input.Headers.Get(constants.HeaderUserAgent)), constants.ReferralUserAgentMaxRunes)
			if _, err := s.visitRepo.WithTx(tx).DeleteByFingerprintAndCode(ctx, clientIP, ua, referralCode.Code); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errReferralCodeRevoked) {
		logger.Infow("referral_convert_code_revoked", "user_id", userID, "referral_code", referralCode.Code)
		if invalidator, ok := s.codeRepo.(referralCodeSnapshotInvalidator); ok {
			invalidator.InvalidateSnapshot(ctx, referralCode.Code)
		}
		return s.skip(constants.ReferralConvertReasonCodeNotApproved), nil
	}
	if errors.Is(err, errReferralAlreadyAttributed) {
		logger.Infow("referral_convert_concurrent_duplicate", "user_id", userID, "referral_code", referralCode.Code)
		return s.skip(constants.ReferralConvertReasonAlreadyAttributed), nil
	}
	if err != nil {
		return s.fail(err)
	}

	s.metrics.ObserveConversion(metrics.ResultAttrib)
	logger.Infow("referral_converted",
		"user_id", userID,
		"referral_code", referralCode.Code,
		"referral_code_id", referralCode.ID,
	)
	return ConvertResult{Attributed: true}, nil
}

// GetAttribution 查询用户的归因记录，未归因返回 nil
func (s *ReferralAttributionService) GetAttribution(ctx context.Context, userID string) (*models.UserReferral, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrIdentityRequired
	}
	return s.referralRepo.GetByUserID(ctx, userID)
}

func isReferralCodeUsable(code *models.ReferralCode, now time.Time) bool {
	if code == nil {
		return false
	}
	if strings.TrimSpace(code.Status) != constants.ReferralCodeStatusApproved {
		return false
	}
	if code.ExpiresAt != nil && !code.ExpiresAt.After(now) {
		return false
	}
	return true
}

func (s *ReferralAttributionService) skip(reason string) ConvertResult {
	s.metrics.ObserveConversion(reason)
	return ConvertResult{Reason: reason}
}

func (s *ReferralAttributionService) fail(err error) (ConvertResult, error) {
	s.metrics.ObserveConversion(metrics.ResultError)
	return ConvertResult{}, err
}
