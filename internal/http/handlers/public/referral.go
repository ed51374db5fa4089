package public

import (
	"time"

	"github.com/lava-community/pwa-api/internal/constants"
	"github.com/lava-community/pwa-api/internal/http/handlers/shared"
	"github.com/lava-community/pwa-api/internal/http/response"
	"github.com/lava-community/pwa-api/internal/service"

	"github.com/gin-gonic/gin"
)

// RecordVisitRequest 访客记录请求
type RecordVisitRequest struct {
	ReferralData *service.ReferralData `json:"referralData" binding:"required"`
	Fingerprint  service.Fingerprint   `json:"fingerprint"`
}

// MatchVisitRequest 访客匹配请求
type MatchVisitRequest struct {
	Fingerprint service.Fingerprint `json:"fingerprint"`
}

// ConvertReferralRequest 归因转化请求
type ConvertReferralRequest struct {
	ReferralData  *service.ReferralData `json:"referralData" binding:"required"`
	WalletAddress string                `json:"walletAddress"`
}

// ReferralAttributionResponse 当前用户的归因记录
type ReferralAttributionResponse struct {
	Ref           string            `json:"ref"`
	Tag           string            `json:"tag"`
	Source        string            `json:"source"`
	FullParams    map[string]string `json:"fullParams"`
	WalletAddress string            `json:"walletAddress,omitempty"`
	ConvertedAt   time.Time         `json:"convertedAt"`
}

// RecordReferralVisit 记录匿名推荐访问
func (h *Handler) RecordReferralVisit(c *gin.Context) {
	var req RecordVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeInvalidRequest, "invalid request body", err)
		return
	}

	result, err := h.ReferralVisitService.RecordVisit(c.Request.Context(), service.RecordVisitInput{
		ReferralData: *req.ReferralData,
		Fingerprint:  req.Fingerprint,
		Headers:      c.Request.Header,
	})
	if err != nil {
		respondReferralVisitError(c, err)
		return
	}
	if !result.Success {
		response.SoftFailure(c, result.Error, visitSoftFailureMessage(result.Error))
		return
	}
	response.Success(c, gin.H{"visitId": result.VisitID})
}

// MatchReferralVisit 按请求指纹匹配推荐访问
// 请求体可以为空
func (h *Handler) MatchReferralVisit(c *gin.Context) {
	var req MatchVisitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			shared.RespondError(c, response.CodeInvalidRequest, "invalid request body", err)
			return
		}
	}

	result, err := h.ReferralVisitService.MatchVisit(c.Request.Context(), service.MatchVisitInput{
		Fingerprint: req.Fingerprint,
		Headers:     c.Request.Header,
	})
	if err != nil {
		respondReferralMatchError(c, err)
		return
	}
	if !result.Matched {
		response.Success(c, gin.H{"matched": false, "reason": result.Reason})
		return
	}
	response.Success(c, gin.H{"matched": true, "referralData": result.ReferralData})
}

// ConvertReferral 登录用户提交推荐参数完成归因
func (h *Handler) ConvertReferral(c *gin.Context) {
	identity, ok := shared.GetIdentity(c)
	if !ok {
		return
	}
	var req ConvertReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		shared.RespondError(c, response.CodeInvalidRequest, "invalid request body", err)
		return
	}

	result, err := h.ReferralAttributionService.Convert(c.Request.Context(), service.ConvertInput{
		Identity:      identity,
		ReferralData:  *req.ReferralData,
		WalletAddress: req.WalletAddress,
		Headers:       c.Request.Header,
	})
	if err != nil {
		respondReferralConvertError(c, err)
		return
	}
	if !result.Attributed {
		response.Success(c, gin.H{"attributed": false, "reason": result.Reason})
		return
	}
	response.Success(c, gin.H{"attributed": true})
}

// GetMyReferral 查询当前用户的归因记录
func (h *Handler) GetMyReferral(c *gin.Context) {
	identity, ok := shared.GetIdentity(c)
	if !ok {
		return
	}
	row, err := h.ReferralAttributionService.GetAttribution(c.Request.Context(), identity.UserID)
	if err != nil {
		shared.RespondError(c, response.CodeServerError, "failed to load referral", err)
		return
	}
	if row == nil {
		response.Success(c, gin.H{"attributed": false})
		return
	}
	params := map[string]string(row.FullParams)
	if params == nil {
		params = map[string]string{}
	}
	response.Success(c, gin.H{
		"attributed": true,
		"referral": ReferralAttributionResponse{
			Ref:           row.ReferralCode,
			Tag:           row.CustomTag,
			Source:        row.Source,
			FullParams:    params,
			WalletAddress: row.WalletAddress,
			ConvertedAt:   row.ConvertedAt,
		},
	})
}

func visitSoftFailureMessage(reason string) string {
	switch reason {
	case constants.ReferralVisitErrorDisabled:
		return "referral tracking is disabled"
	case constants.ReferralVisitErrorNoIP:
		return "client ip unavailable"
	default:
		return "visit not recorded"
	}
}
