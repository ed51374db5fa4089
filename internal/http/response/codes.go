package response

import (
	"net/http"

	"github.com/lava-community/pwa-api/internal/constants"
)

const (
	CodeInvalidRequest = constants.APIErrorInvalidRequest
	CodeUnauthorized   = constants.APIErrorUnauthorized
	CodeRateLimited    = constants.APIErrorRateLimited
	CodeServerError    = constants.APIErrorServerError
)

// StatusFor 错误码对应的 HTTP 状态
func StatusFor(code string) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
