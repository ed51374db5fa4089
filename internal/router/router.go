package router

import (
	"strings"

	"github.com/lava-community/pwa-api/internal/cache"
	"github.com/lava-community/pwa-api/internal/config"
	publichandlers "github.com/lava-community/pwa-api/internal/http/handlers/public"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()
	applyTrustedProxies(r, cfg.Server.TrustedProxies)

	publicHandler := publichandlers.New(c)
	redisClient := cache.Client()
	recordVisitRule := RateLimitRule{
		Prefix:        cache.Key("rate:referral_visit"),
		WindowSeconds: cfg.Security.RateLimit.RecordVisit.WindowSeconds,
		MaxRequests:   cfg.Security.RateLimit.RecordVisit.MaxRequests,
	}
	matchVisitRule := RateLimitRule{
		Prefix:        cache.Key("rate:referral_match"),
		WindowSeconds: cfg.Security.RateLimit.MatchVisit.WindowSeconds,
		MaxRequests:   cfg.Security.RateLimit.MatchVisit.MaxRequests,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	if cfg.Metrics.Enabled {
		r.Use(metrics.HTTP().Middleware())
	}
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		referral := apiV1.Group("/referral")
		{
			// 匿名访客接口
			referral.POST("/visits", RateLimitMiddleware(redisClient, recordVisitRule, KeyByClientIP), publicHandler.RecordReferralVisit)
			referral.POST("/match", RateLimitMiddleware(redisClient, matchVisitRule, KeyByClientIP), publicHandler.MatchReferralVisit)

			// 登录用户接口
			authed := referral.Group("")
			authed.Use(IdentityAuthMiddleware(c.IdentityVerifier))
			{
				authed.POST("/convert", publicHandler.ConvertReferral)
				authed.GET("/me", publicHandler.GetMyReferral)
			}
		}
	}

	if cfg.Metrics.Enabled {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, metrics.Handler())
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}

// applyTrustedProxies 配置非法时退化为不信任任何代理，限流按 socket 对端地址计
func applyTrustedProxies(r *gin.Engine, proxies []string) {
	trusted := make([]string, 0, len(proxies))
	for _, proxy := range proxies {
		if proxy = strings.TrimSpace(proxy); proxy != "" {
			trusted = append(trusted, proxy)
		}
	}
	if len(trusted) == 0 {
		_ = r.SetTrustedProxies(nil)
		return
	}
	if err := r.SetTrustedProxies(trusted); err != nil {
		logger.Warnw("router_trusted_proxies_invalid", "proxies", trusted, "error", err)
		_ = r.SetTrustedProxies(nil)
	}
}
