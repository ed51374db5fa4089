package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/lava-community/pwa-api/internal/models"

	"gorm.io/gorm"
)

// ReferralCodeRepository 推荐码数据访问接口
type ReferralCodeRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralCodeRepository

	GetByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	GetByID(ctx context.Context, id uint) (*models.ReferralCode, error)
	Create(ctx context.Context, code *models.ReferralCode) error
	IncrementUsage(ctx context.Context, id uint) error
}

// GormReferralCodeRepository GORM 推荐码仓储
type GormReferralCodeRepository struct {
	db *gorm.DB
}

// NewReferralCodeRepository 创建推荐码仓储
func NewReferralCodeRepository(db *gorm.DB) *GormReferralCodeRepository {
	return &GormReferralCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReferralCodeRepository) WithTx(tx *gorm.DB) ReferralCodeRepository {
	if tx == nil {
		return r
	}
	return &GormReferralCodeRepository{db: tx}
}

// Transaction 执行事务
func (r *GormReferralCodeRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// GetByCode 按推荐码查询（不区分大小写）
func (r *GormReferralCodeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var row models.ReferralCode
	if err := r.db.WithContext(ctx).Where("code = ?", normalized).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByID 按ID查询
func (r *GormReferralCodeRepository) GetByID(ctx context.Context, id uint) (*models.ReferralCode, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.ReferralCode
	if err := r.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Create 创建推荐码，写入前统一转大写
func (r *GormReferralCodeRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	if code == nil {
		return nil
	}
	code.Code = strings.ToUpper(strings.TrimSpace(code.Code))
	return r.db.WithContext(ctx).Create(code).Error
}

// IncrementUsage 使用次数原子加一
func (r *GormReferralCodeRepository) IncrementUsage(ctx context.Context, id uint) error {
	if id == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.ReferralCode{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
