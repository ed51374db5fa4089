package public

import (
	"errors"

	"github.com/lava-community/pwa-api/internal/http/handlers/shared"
	"github.com/lava-community/pwa-api/internal/http/response"
	"github.com/lava-community/pwa-api/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
// message 为对外文案，业务错误原文只写入日志。
type mappedHandlerError struct {
	target  error
	code    string
	message string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode, fallbackMessage string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			message := rule.message
			if message == "" {
				message = fallbackMessage
			}
			shared.RespondError(c, rule.code, message, err)
			return
		}
	}
	shared.RespondError(c, fallbackCode, fallbackMessage, err)
}

var referralRequestErrorRules = []mappedHandlerError{
	{target: service.ErrReferralCodeRequired, code: response.CodeInvalidRequest, message: "referral code is required"},
	{target: service.ErrReferralCapturedAt, code: response.CodeInvalidRequest, message: "capturedAt is missing or invalid"},
	{target: service.ErrReferralInvalidRequest, code: response.CodeInvalidRequest, message: "invalid referral request"},
}

var referralIdentityErrorRules = []mappedHandlerError{
	{target: service.ErrIdentityRequired, code: response.CodeUnauthorized, message: "authentication required"},
	{target: service.ErrIdentityInvalid, code: response.CodeUnauthorized, message: "invalid identity token"},
	{target: service.ErrIdentityNotConfigured, code: response.CodeUnauthorized, message: "identity verification unavailable"},
}

func respondReferralVisitError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralRequestErrorRules, response.CodeServerError, "failed to record visit")
}

func respondReferralMatchError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralRequestErrorRules, response.CodeServerError, "failed to match visit")
}

func respondReferralConvertError(c *gin.Context, err error) {
	rules := append(append([]mappedHandlerError{}, referralRequestErrorRules...), referralIdentityErrorRules...)
	respondWithMappedError(c, err, rules, response.CodeServerError, "failed to convert referral")
}
