package models

import "time"

// UserReferral 用户归因记录，每个用户至多一条
type UserReferral struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                 // 主键
	UserID         string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"user_id"` // 被推荐用户ID
	UserEmail      string    `gorm:"type:varchar(255)" json:"user_email"`                  // 被推荐用户邮箱
	ReferralCodeID uint      `gorm:"not null;index" json:"referral_code_id"`               // 推荐码ID
	ReferralCode   string    `gorm:"type:varchar(64);not null;index" json:"referral_code"` // 推荐码快照
	CustomTag      string    `gorm:"type:varchar(200)" json:"custom_tag"`                  // 自定义标签
	Source         string    `gorm:"type:varchar(200)" json:"source"`                      // 来源渠道
	FullParams     StringMap `gorm:"type:text" json:"full_params"`                         // 落地页参数
	WalletAddress  string    `gorm:"type:varchar(128)" json:"wallet_address"`              // 钱包地址
	ClientIP       string    `gorm:"type:varchar(64)" json:"client_ip"`                    // 转化请求IP
	ConvertedAt    time.Time `gorm:"not null;index" json:"converted_at"`                   // 转化时间
	CreatedAt      time.Time `json:"created_at"`                                           // 创建时间
}

// TableName 指定表名
func (UserReferral) TableName() string {
	return "user_referrals"
}
