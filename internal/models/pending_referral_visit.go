package models

import "time"

// PendingReferralVisit 待匹配的推荐访问记录（网页端落地时写入，PWA 首启时按指纹匹配）
// 指纹查询走 (ip_address, user_agent) 复合索引
type PendingReferralVisit struct {
	ID               string     `gorm:"primarykey;type:varchar(36)" json:"id"`                                     // UUID
	IPAddress        string     `gorm:"type:varchar(64);not null;index:idx_prv_fingerprint,priority:1" json:"ip"` // 客户端IP
	UserAgent        string     `gorm:"type:varchar(512);not null;index:idx_prv_fingerprint,priority:2" json:"ua"` // 截断后的UA
	ScreenResolution string     `gorm:"type:varchar(32)" json:"screen_resolution"`                                 // 屏幕分辨率
	ReferralCode     string     `gorm:"type:varchar(64);not null;index" json:"referral_code"`                      // 推荐码
	CustomTag        string     `gorm:"type:varchar(200)" json:"custom_tag"`                                       // 自定义标签
	Source           string     `gorm:"type:varchar(200)" json:"source"`                                           // 来源渠道
	FullParams       StringMap  `gorm:"type:text" json:"full_params"`                                              // 落地页参数
	CapturedAt       *time.Time `json:"captured_at"`                                                               // 客户端捕获时间（仅记录）
	ExpiresAt        time.Time  `gorm:"not null;index" json:"expires_at"`                                          // 过期时间
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                                                   // 创建时间
}

// TableName 指定表名
func (PendingReferralVisit) TableName() string {
	return "pending_referral_visits"
}
