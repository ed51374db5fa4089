package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/models"
)

// ReferralData 落地页捕获的推荐参数
type ReferralData struct {
	Ref        string                 `json:"ref"`
	Tag        string                 `json:"tag"`
	Source     string                 `json:"source"`
	FullParams map[string]interface{} `json:"fullParams"`
	CapturedAt string                 `json:"capturedAt"`
}

// Fingerprint 客户端上报的辅助指纹
type Fingerprint struct {
	ScreenResolution string `json:"screenResolution"`
}

// RequestFingerprint 服务端从请求头推导的指纹
type RequestFingerprint struct {
	IP               string
	UserAgent        string
	ScreenResolution string
}

// ResolveRequestFingerprint 从请求头推导 IP 与 UA，不信任请求体
func ResolveRequestFingerprint(headers http.Header, fp Fingerprint) RequestFingerprint {
	return RequestFingerprint{
		IP:               ResolveClientIP(headers),
		UserAgent:        truncateRunes(strings.TrimSpace(headers.Get(constants.HeaderUserAgent)), constants.ReferralUserAgentMaxRunes),
		ScreenResolution: truncateRunes(strings.TrimSpace(fp.ScreenResolution), constants.ReferralScreenResMaxRunes),
	}
}

// ResolveClientIP 依次读取 X-Forwarded-For 首项、CF-Connecting-IP、X-Real-IP
func ResolveClientIP(headers http.Header) string {
	if headers == nil {
		return ""
	}
	if forwarded := headers.Get(constants.HeaderForwardedFor); forwarded != "" {
		first := forwarded
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			first = forwarded[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(headers.Get(constants.HeaderCFConnectingIP)); ip != "" {
		return ip
	}
	return strings.TrimSpace(headers.Get(constants.HeaderRealIP))
}

// normalizeReferralCode 推荐码统一去空白并转大写
func normalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SanitizeFullParams 限制落地页参数的数量与长度
// 按键名排序后截取，保证同样输入得到同样输出
func SanitizeFullParams(raw map[string]interface{}) models.StringMap {
	result := models.StringMap{}
	if len(raw) == 0 {
		return result
	}
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if len(result) >= constants.ReferralFullParamsMaxKeys {
			break
		}
		cleanKey := truncateRunes(strings.TrimSpace(key), constants.ReferralFullParamKeyMaxRune)
		if cleanKey == "" {
			continue
		}
		if _, exists := result[cleanKey]; exists {
			continue
		}
		result[cleanKey] = truncateRunes(stringifyParam(raw[key]), constants.ReferralFullParamValMaxRune)
	}
	return result
}

func stringifyParam(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int, int64, int32, uint, uint64, uint32:
		return fmt.Sprintf("%d", v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// parseCapturedAt 解析客户端捕获时间，空值返回 nil
func parseCapturedAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReferralCapturedAt, raw)
	}
	utc := parsed.UTC()
	return &utc, nil
}

func truncateRunes(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	return string(runes[:max])
}
