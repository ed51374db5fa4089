package models

import (
	"time"

	"gorm.io/gorm"
)

// ReferralCode 推荐码（审核通过后才可用于归因）
type ReferralCode struct {
	ID             uint           `gorm:"primarykey" json:"id"`                               // 主键
	Code           string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`  // 推荐码（大写）
	ReferrerUserID string         `gorm:"type:varchar(128);index" json:"referrer_user_id"`    // 推荐人用户ID
	ReferrerEmail  string         `gorm:"type:varchar(255)" json:"referrer_email"`            // 推荐人邮箱
	Status         string         `gorm:"type:varchar(20);not null;index" json:"status"`      // 状态
	UsageCount     int64          `gorm:"not null;default:0" json:"usage_count"`              // 成功归因次数
	ExpiresAt      *time.Time     `json:"expires_at"`                                         // 可选过期时间
	CreatedAt      time.Time      `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt      time.Time      `json:"updated_at"`                                         // 更新时间
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`                                     // 软删除时间
}

// TableName 指定表名
func (ReferralCode) TableName() string {
	return "referral_codes"
}
