package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/models"
	"github.com/lava-community/pwa-api/internal/repository"

	"github.com/google/uuid"
)

// ReferralVisitService 访客记录与匹配
type ReferralVisitService struct {
	repo      repository.ReferralVisitRepository
	scheduler SweepScheduler
	setting   ReferralSetting
	metrics   *metrics.ReferralMetrics
	now       func() time.Time
}

// NewReferralVisitService 创建访客服务
func NewReferralVisitService(
	repo repository.ReferralVisitRepository,
	scheduler SweepScheduler,
	setting ReferralSetting,
	m *metrics.ReferralMetrics,
) *ReferralVisitService {
	return &ReferralVisitService{
		repo:      repo,
		scheduler: scheduler,
		setting:   NormalizeReferralSetting(setting),
		metrics:   m,
		now:       time.Now,
	}
}

// RecordVisitInput 访客记录输入
type RecordVisitInput struct {
	ReferralData ReferralData
	Fingerprint  Fingerprint
	Headers      http.Header
}

// RecordVisitResult 访客记录结果，Success=false 时 Error 为软失败原因
type RecordVisitResult struct {
	Success bool
	VisitID string
	Error   string
}

// MatchVisitInput 访客匹配输入
type MatchVisitInput struct {
	Fingerprint Fingerprint
	Headers     http.Header
}

// MatchedReferral 匹配命中的推荐参数
type MatchedReferral struct {
	Ref        string            `json:"ref"`
	Tag        string            `json:"tag"`
	Source     string            `json:"source"`
	FullParams map[string]string `json:"fullParams"`
	CapturedAt *time.Time        `json:"capturedAt"`
}

// MatchVisitResult 访客匹配结果，未命中时 Reason 非空
type MatchVisitResult struct {
	Matched      bool
	ReferralData *MatchedReferral
	Reason       string
}

// RecordVisit 记录一次匿名推荐访问
func (s *ReferralVisitService) RecordVisit(ctx context.Context, input RecordVisitInput) (RecordVisitResult, error) {
	if !s.setting.Enabled {
		s.metrics.ObserveVisit(constants.ReferralVisitErrorDisabled)
		return RecordVisitResult{Error: constants.ReferralVisitErrorDisabled}, nil
	}
	code := normalizeReferralCode(input.ReferralData.Ref)
	if code == "" {
		return RecordVisitResult{}, ErrReferralCodeRequired
	}
	if len([]rune(code)) > constants.ReferralCodeMaxRunes {
		return RecordVisitResult{}, fmt.Errorf("%w: 推荐码过长", ErrReferralInvalidRequest)
	}
	capturedAt, err := parseCapturedAt(input.ReferralData.CapturedAt)
	if err != nil {
		return RecordVisitResult{}, err
	}
	if capturedAt == nil {
		return RecordVisitResult{}, fmt.Errorf("%w: 缺少 capturedAt", ErrReferralCapturedAt)
	}

	fp := ResolveRequestFingerprint(input.Headers, input.Fingerprint)
	if fp.IP == "" {
		s.metrics.ObserveVisit(constants.ReferralVisitErrorNoIP)
		return RecordVisitResult{Error: constants.ReferralVisitErrorNoIP}, nil
	}

	now := s.now().UTC()
	visit := &models.PendingReferralVisit{
		ID:               uuid.NewString(),
		IPAddress:        fp.IP,
		UserAgent:        fp.UserAgent,
		ScreenResolution: fp.ScreenResolution,
		ReferralCode:     code,
		CustomTag:        truncateRunes(strings.TrimSpace(input.ReferralData.Tag), constants.ReferralLabelMaxRunes),
		Source:           truncateRunes(strings.TrimSpace(input.ReferralData.Source), constants.ReferralLabelMaxRunes),
		FullParams:       SanitizeFullParams(input.ReferralData.FullParams),
		CapturedAt:       capturedAt,
		ExpiresAt:        now.Add(s.setting.MatchWindow()),
		CreatedAt:        now,
	}

	if s.scheduler != nil {
		s.scheduler.ScheduleSweep(ctx)
	}

	if err := s.repo.Create(ctx, visit); err != nil {
		s.metrics.ObserveVisit(metrics.ResultError)
		return RecordVisitResult{}, err
	}
	s.metrics.ObserveVisit(metrics.ResultRecorded)
	logger.Debugw("referral_visit_recorded", "visit_id", visit.ID, "referral_code", code, "expires_at", visit.ExpiresAt)
	return RecordVisitResult{Success: true, VisitID: visit.ID}, nil
}

// MatchVisit 按当前请求指纹查找唯一的未过期访问记录
// 多条命中视为不可区分，直接放弃归因；命中记录不在此处删除
func (s *ReferralVisitService) MatchVisit(ctx context.Context, input MatchVisitInput) (MatchVisitResult, error) {
	if !s.setting.Enabled {
		return s.miss(constants.ReferralMatchReasonDisabled), nil
	}
	fp := ResolveRequestFingerprint(input.Headers, input.Fingerprint)
	if fp.IP == "" {
		return s.miss(constants.ReferralMatchReasonNoIP), nil
	}

	rows, err := s.repo.ListActiveByFingerprint(ctx, fp.IP, fp.UserAgent, s.now().UTC())
	if err != nil {
		s.metrics.ObserveMatch(metrics.ResultError)
		return MatchVisitResult{}, err
	}
	candidates := s.filterByScreenResolution(rows, fp.ScreenResolution)

	switch len(candidates) {
	case 0:
		return s.miss(constants.ReferralMatchReasonNoMatch), nil
	case 1:
	default:
		logger.Infow("referral_visit_match_ambiguous", "ip", fp.IP, "candidates", len(candidates))
		return s.miss(constants.ReferralMatchReasonMultipleMatches), nil
	}

	visit := candidates[0]
	s.metrics.ObserveMatch(metrics.ResultMatched)
	params := map[string]string(visit.FullParams)
	if params == nil {
		params = map[string]string{}
	}
	return MatchVisitResult{
		Matched: true,
		ReferralData: &MatchedReferral{
			Ref:        visit.ReferralCode,
			Tag:        visit.CustomTag,
			Source:     visit.Source,
			FullParams: params,
			CapturedAt: visit.CapturedAt,
		},
	}, nil
}

// filterByScreenResolution 开启后，双方都有分辨率且不一致的记录被排除
func (s *ReferralVisitService) filterByScreenResolution(rows []models.PendingReferralVisit, screen string) []models.PendingReferralVisit {
	if !s.setting.MatchScreenResolution || screen == "" {
		return rows
	}
	filtered := make([]models.PendingReferralVisit, 0, len(rows))
	for _, row := range rows {
		if row.ScreenResolution != "" && row.ScreenResolution != screen {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

func (s *ReferralVisitService) miss(reason string) MatchVisitResult {
	s.metrics.ObserveMatch(reason)
	return MatchVisitResult{Reason: reason}
}
