package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/lava-community/pwa-api/internal/models"

	"gorm.io/gorm"
)

// UserReferralRepository 用户归因数据访问接口
type UserReferralRepository interface {
	WithTx(tx *gorm.DB) UserReferralRepository

	GetByUserID(ctx context.Context, userID string) (*models.UserReferral, error)
	Create(ctx context.Context, referral *models.UserReferral) error
	CountByCodeID(ctx context.Context, codeID uint) (int64, error)
}

// GormUserReferralRepository GORM 用户归因仓储
type GormUserReferralRepository struct {
	db *gorm.DB
}

// NewUserReferralRepository 创建用户归因仓储
func NewUserReferralRepository(db *gorm.DB) *GormUserReferralRepository {
	return &GormUserReferralRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserReferralRepository) WithTx(tx *gorm.DB) UserReferralRepository {
	if tx == nil {
		return r
	}
	return &GormUserReferralRepository{db: tx}
}

// GetByUserID 按用户ID查询归因记录
func (r *GormUserReferralRepository) GetByUserID(ctx context.Context, userID string) (*models.UserReferral, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	var row models.UserReferral
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Create 写入归因记录，user_id 唯一约束冲突原样返回
func (r *GormUserReferralRepository) Create(ctx context.Context, referral *models.UserReferral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

// CountByCodeID 统计推荐码的归因数
func (r *GormUserReferralRepository) CountByCodeID(ctx context.Context, codeID uint) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.UserReferral{}).Where("referral_code_id = ?", codeID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
