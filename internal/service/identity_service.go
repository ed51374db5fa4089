package service

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/lava-community/pwa-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityVerifier 将 bearer 令牌解析为已校验身份
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// IdentityClaims 身份令牌声明，sub 为稳定用户ID
type IdentityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTIdentityVerifier 基于 JWT 的身份校验
// 配置了公钥时按 RS256 校验，否则按 HS256 共享密钥校验
type JWTIdentityVerifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
	audience  string
	parser    *jwt.Parser
	now       func() time.Time
}

// NewJWTIdentityVerifier 创建身份校验器
func NewJWTIdentityVerifier(cfg config.IdentityConfig) (*JWTIdentityVerifier, error) {
	v := &JWTIdentityVerifier{
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		now:      time.Now,
	}
	method := jwt.SigningMethodHS256.Alg()
	if pem := strings.TrimSpace(cfg.PublicKeyPEM); pem != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("解析身份公钥失败: %w", err)
		}
		v.publicKey = key
		method = jwt.SigningMethodRS256.Alg()
	} else {
		v.secret = []byte(cfg.SecretKey)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	}
	if cfg.LeewaySecond > 0 {
		options = append(options, jwt.WithLeeway(time.Duration(cfg.LeewaySecond)*time.Second))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	v.parser = jwt.NewParser(options...)
	return v, nil
}

// Configured 是否具备校验能力
func (v *JWTIdentityVerifier) Configured() bool {
	return v != nil && (v.publicKey != nil || len(v.secret) > 0)
}

// Verify 校验令牌并返回身份
func (v *JWTIdentityVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	if !v.Configured() {
		return Identity{}, ErrIdentityNotConfigured
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrIdentityRequired
	}
	claims := &IdentityClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrIdentityInvalid, err)
	}
	if !token.Valid {
		return Identity{}, ErrIdentityInvalid
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: 缺少 sub", ErrIdentityInvalid)
	}
	return Identity{UserID: userID, Email: strings.TrimSpace(claims.Email)}, nil
}

// IssueToken 使用共享密钥签发令牌，仅用于本地开发与测试
func (v *JWTIdentityVerifier) IssueToken(identity Identity, ttl time.Duration) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", ErrIdentityNotConfigured
	}
	now := v.now()
	claims := IdentityClaims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
