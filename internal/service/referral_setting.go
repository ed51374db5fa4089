package service

import (
	"time"

	"github.com/lava-community/pwa-api/internal/config"
)

const (
	referralMatchWindowMinutesDefault = 60
	referralMatchWindowMinutesMax     = 24 * 60
	referralExpiryDaysDefault         = 30
	referralExpiryDaysMax             = 3650
	referralSweepIntervalDefault      = 300
	referralSweepIntervalMin          = 10
)

// ReferralSetting 推荐归因运行配置，构造服务时注入
type ReferralSetting struct {
	Enabled               bool
	MatchWindowMinutes    int
	ExpiryDays            int
	MatchScreenResolution bool
	ConsumeVisitOnConvert bool
	SweepIntervalSeconds  int
}

// ReferralDefaultSetting 默认推荐归因配置
func ReferralDefaultSetting() ReferralSetting {
	return NormalizeReferralSetting(ReferralSetting{Enabled: true})
}

// ReferralSettingFromConfig 从应用配置构建
func ReferralSettingFromConfig(cfg config.ReferralConfig) ReferralSetting {
	return NormalizeReferralSetting(ReferralSetting{
		Enabled:               cfg.ProbabilisticMatching.Enabled,
		MatchWindowMinutes:    cfg.MatchWindowMinutes,
		ExpiryDays:            cfg.ExpiryDays,
		MatchScreenResolution: cfg.MatchScreenResolution,
		ConsumeVisitOnConvert: cfg.ConsumeVisitOnConvert,
		SweepIntervalSeconds:  cfg.SweepIntervalSeconds,
	})
}

// NormalizeReferralSetting 归一化配置，非法值回落默认
func NormalizeReferralSetting(setting ReferralSetting) ReferralSetting {
	if setting.MatchWindowMinutes <= 0 {
		setting.MatchWindowMinutes = referralMatchWindowMinutesDefault
	}
	if setting.MatchWindowMinutes > referralMatchWindowMinutesMax {
		setting.MatchWindowMinutes = referralMatchWindowMinutesMax
	}
	if setting.ExpiryDays <= 0 {
		setting.ExpiryDays = referralExpiryDaysDefault
	}
	if setting.ExpiryDays > referralExpiryDaysMax {
		setting.ExpiryDays = referralExpiryDaysMax
	}
	if setting.SweepIntervalSeconds <= 0 {
		setting.SweepIntervalSeconds = referralSweepIntervalDefault
	}
	if setting.SweepIntervalSeconds < referralSweepIntervalMin {
		setting.SweepIntervalSeconds = referralSweepIntervalMin
	}
	return setting
}

// MatchWindow 访问记录可匹配时长
func (s ReferralSetting) MatchWindow() time.Duration {
	return time.Duration(s.MatchWindowMinutes) * time.Minute
}

// AttributionExpiry 捕获时间距今的最大归因时长
func (s ReferralSetting) AttributionExpiry() time.Duration {
	return time.Duration(s.ExpiryDays) * 24 * time.Hour
}

// SweepInterval 周期清理间隔
func (s ReferralSetting) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}
