package service

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrReferralInvalidRequest = errors.New("推荐请求参数无效")
	ErrReferralCodeRequired   = errors.New("推荐码不能为空")
	ErrReferralCapturedAt     = errors.New("捕获时间格式无效")
	ErrIdentityRequired       = errors.New("缺少身份信息")
	ErrIdentityInvalid        = errors.New("身份令牌无效")
	ErrIdentityNotConfigured  = errors.New("身份校验未配置")
)

const pgUniqueViolationCode = "23505"

// isUniqueViolation 判断是否为唯一约束冲突
// 依次识别 gorm 翻译后的错误、postgres 错误码，最后按错误信息兜底
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
