package constants

// 推荐码状态常量
const (
	ReferralCodeStatusPending  = "pending"
	ReferralCodeStatusApproved = "approved"
	ReferralCodeStatusRejected = "rejected"
	ReferralCodeStatusDisabled = "disabled"
)

// 访客记录失败原因（软失败，返回 success=false）
const (
	ReferralVisitErrorDisabled = "disabled"
	ReferralVisitErrorNoIP     = "no_ip"
)

// 访客匹配未命中原因
const (
	ReferralMatchReasonDisabled        = "disabled"
	ReferralMatchReasonNoIP            = "no_ip"
	ReferralMatchReasonNoMatch         = "no_match"
	ReferralMatchReasonMultipleMatches = "multiple_matches"
)

// 归因转化未命中原因
const (
	ReferralConvertReasonDisabled          = "disabled"
	ReferralConvertReasonExpired           = "expired"
	ReferralConvertReasonCodeNotApproved   = "code_not_approved"
	ReferralConvertReasonAlreadyAttributed = "already_attributed"
)

// 接口错误码
const (
	APIErrorInvalidRequest = "invalid_request"
	APIErrorUnauthorized   = "unauthorized"
	APIErrorRateLimited    = "rate_limited"
	APIErrorServerError    = "server_error"
)

// 访客指纹与参数长度限制
const (
	ReferralUserAgentMaxRunes   = 512
	ReferralFullParamsMaxKeys   = 20
	ReferralFullParamKeyMaxRune = 50
	ReferralFullParamValMaxRune = 200
	ReferralCodeMaxRunes        = 64
	ReferralLabelMaxRunes       = 200
	ReferralScreenResMaxRunes   = 32
	ReferralWalletAddrMaxRunes  = 128
)

// 代理 IP 请求头（按优先级排序）
const (
	HeaderForwardedFor      = "X-Forwarded-For"
	HeaderCFConnectingIP    = "CF-Connecting-IP"
	HeaderRealIP            = "X-Real-IP"
	HeaderUserAgent         = "User-Agent"
	HeaderAuthorization     = "Authorization"
	HeaderRequestID         = "X-Request-ID"
	ContextKeyRequestID     = "request_id"
	ContextKeyUserID        = "user_id"
	ContextKeyUserEmail     = "user_email"
	AuthorizationBearerType = "Bearer"
)

// 队列常量
const (
	QueueDefault            = "default"
	QueueLow                = "low"
	TaskReferralVisitSweep  = "referral:visit_sweep"
	ReferralSweepUniqueSecs = 60
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "lava"
)
