package repository

import (
	"context"
	"strings"
	"time"

	"github.com/lava-community/pwa-api/internal/models"

	"gorm.io/gorm"
)

// ReferralVisitRepository 待匹配推荐访问数据访问接口
type ReferralVisitRepository interface {
	WithTx(tx *gorm.DB) ReferralVisitRepository

	Create(ctx context.Context, visit *models.PendingReferralVisit) error
	ListActiveByFingerprint(ctx context.Context, ip, userAgent string, now time.Time) ([]models.PendingReferralVisit, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteByFingerprintAndCode(ctx context.Context, ip, userAgent, code string) (int64, error)
}

// GormReferralVisitRepository GORM 推荐访问仓储
type GormReferralVisitRepository struct {
	db *gorm.DB
}

// NewReferralVisitRepository 创建推荐访问仓储
func NewReferralVisitRepository(db *gorm.DB) *GormReferralVisitRepository {
	return &GormReferralVisitRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralVisitRepository) WithTx(tx *gorm.DB) ReferralVisitRepository {
	if tx == nil {
		return r
	}
	return &GormReferralVisitRepository{db: tx}
}

// Create 写入访问记录
func (r *GormReferralVisitRepository) Create(ctx context.Context, visit *models.PendingReferralVisit) error {
	return r.db.WithContext(ctx).Create(visit).Error
}

// ListActiveByFingerprint 查询指纹相同且未过期的访问记录
// 最多返回两条：调用方只需区分 0 / 1 / 多条
func (r *GormReferralVisitRepository) ListActiveByFingerprint(ctx context.Context, ip, userAgent string, now time.Time) ([]models.PendingReferralVisit, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, nil
	}
	var visits []models.PendingReferralVisit
	err := r.db.WithContext(ctx).
		Where("ip_address = ? AND user_agent = ? AND expires_at > ?", ip, userAgent, now).
		Order("created_at DESC").
		Find(&visits).Error
	if err != nil {
		return nil, err
	}
	return visits, nil
}

// DeleteExpired 删除已过期的访问记录，返回删除行数
func (r *GormReferralVisitRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.PendingReferralVisit{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteByFingerprintAndCode 删除指定指纹与推荐码的访问记录
func (r *GormReferralVisitRepository) DeleteByFingerprintAndCode(ctx context.Context, ip, userAgent, code string) (int64, error) {
	if strings.TrimSpace(ip) == "" || strings.TrimSpace(code) == "" {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("ip_address = ? AND user_agent = ? AND UPPER(referral_code) = ?", ip, userAgent, strings.ToUpper(strings.TrimSpace(code))).
		Delete(&models.PendingReferralVisit{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
