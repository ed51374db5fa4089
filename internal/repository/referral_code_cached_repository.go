package repository

import (
	"context"

	"github.com/lava-community/pwa-api/internal/cache"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/models"

	"gorm.io/gorm"
)

// CachedReferralCodeRepository 为推荐码查询加一层 Redis 快照
// 事务内操作直接走底层仓储
type CachedReferralCodeRepository struct {
	ReferralCodeRepository
}

// NewCachedReferralCodeRepository 创建带缓存的推荐码仓储
func NewCachedReferralCodeRepository(inner ReferralCodeRepository) *CachedReferralCodeRepository {
	return &CachedReferralCodeRepository{ReferralCodeRepository: inner}
}

// WithTx 绑定事务，事务内不读缓存
func (r *CachedReferralCodeRepository) WithTx(tx *gorm.DB) ReferralCodeRepository {
	return r.ReferralCodeRepository.WithTx(tx)
}

// GetByCode 优先读取快照，未命中时回源并回填
func (r *CachedReferralCodeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	state, hit, err := cache.GetReferralCodeState(ctx, code)
	if err != nil {
		logger.Warnw("referral_code_cache_get_failed", "code", code, "error", err)
	}
	if hit && state != nil {
		return &models.ReferralCode{
			ID:        state.ID,
			Code:      state.Code,
			Status:    state.Status,
			ExpiresAt: state.ExpiresAt,
		}, nil
	}

	row, err := r.ReferralCodeRepository.GetByCode(ctx, code)
	if err != nil || row == nil {
		return row, err
	}
	if err := cache.SetReferralCodeState(ctx, cache.ReferralCodeState{
		ID:        row.ID,
		Code:      row.Code,
		Status:    row.Status,
		ExpiresAt: row.ExpiresAt,
	}); err != nil {
		logger.Warnw("referral_code_cache_set_failed", "code", row.Code, "error", err)
	}
	return row, nil
}

// Create 创建推荐码并清理同名快照
func (r *CachedReferralCodeRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	if err := r.ReferralCodeRepository.Create(ctx, code); err != nil {
		return err
	}
	if code != nil {
		r.InvalidateSnapshot(ctx, code.Code)
	}
	return nil
}

// InvalidateSnapshot 删除推荐码快照，失败只记日志
func (r *CachedReferralCodeRepository) InvalidateSnapshot(ctx context.Context, code string) {
	if err := cache.InvalidateReferralCodeState(ctx, code); err != nil {
		logger.Warnw("referral_code_cache_invalidate_failed", "code", code, "error", err)
	}
}
