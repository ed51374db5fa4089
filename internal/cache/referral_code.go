package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const referralCodeCacheTTL = time.Minute

// ReferralCodeState 推荐码状态快照，仅用于转化前的资格判断
// 使用次数不进缓存，计数始终在数据库事务内更新
type ReferralCodeState struct {
	ID        uint       `json:"id"`
	Code      string     `json:"code"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CachedAt  int64      `json:"cached_at"`
}

func referralCodeKey(code string) string {
	return fmt.Sprintf("referral:code:%s", strings.ToUpper(strings.TrimSpace(code)))
}

// GetReferralCodeState 读取推荐码快照
func GetReferralCodeState(ctx context.Context, code string) (*ReferralCodeState, bool, error) {
	var state ReferralCodeState
	hit, err := GetJSON(ctx, referralCodeKey(code), &state)
	if err != nil || !hit {
		return nil, false, err
	}
	return &state, true, nil
}

// SetReferralCodeState 写入推荐码快照
func SetReferralCodeState(ctx context.Context, state ReferralCodeState) error {
	if strings.TrimSpace(state.Code) == "" {
		return nil
	}
	state.CachedAt = time.Now().Unix()
	return SetJSON(ctx, referralCodeKey(state.Code), state, referralCodeCacheTTL)
}

// InvalidateReferralCodeState 删除推荐码快照
func InvalidateReferralCodeState(ctx context.Context, codes ...string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		keys = append(keys, referralCodeKey(code))
	}
	return Del(ctx, keys...)
}
