package provider

import (
	"github.com/lava-community/pwa-api/internal/cache"
	"github.com/lava-community/pwa-api/internal/config"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/models"
	"github.com/lava-community/pwa-api/internal/queue"
	"github.com/lava-community/pwa-api/internal/repository"
	"github.com/lava-community/pwa-api/internal/service"

	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Metrics     *metrics.ReferralMetrics

	// Repositories
	ReferralVisitRepo repository.ReferralVisitRepository
	ReferralCodeRepo  repository.ReferralCodeRepository
	UserReferralRepo  repository.UserReferralRepository

	// Services
	ReferralSetting            service.ReferralSetting
	ReferralSweeper            *service.ReferralSweeper
	SweepScheduler             service.SweepScheduler
	ReferralVisitService       *service.ReferralVisitService
	ReferralAttributionService *service.ReferralAttributionService
	IdentityVerifier           service.IdentityVerifier
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	return NewContainerWithDB(cfg, models.DB, queueClient, metrics.Referral())
}

// NewContainerWithDB 使用指定数据库与队列构建容器，测试中也走这里
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, queueClient *queue.Client, m *metrics.ReferralMetrics) *Container {
	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Metrics:     m,
	}

	// 1. 初始化 Repositories
	c.initRepositories(db)

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories(db *gorm.DB) {
	c.ReferralVisitRepo = repository.NewReferralVisitRepository(db)
	c.ReferralCodeRepo = repository.NewCachedReferralCodeRepository(repository.NewReferralCodeRepository(db))
	c.UserReferralRepo = repository.NewUserReferralRepository(db)
}

func (c *Container) initServices() {
	c.ReferralSetting = service.ReferralSettingFromConfig(c.Config.Referral)
	if !c.ReferralSetting.Enabled {
		logger.Infow("provider_referral_matching_disabled")
	}

	c.ReferralSweeper = service.NewReferralSweeper(c.ReferralVisitRepo, c.Metrics)
	c.SweepScheduler = service.NewQueueSweepScheduler(c.QueueClient, c.ReferralSweeper)
	c.ReferralVisitService = service.NewReferralVisitService(
		c.ReferralVisitRepo,
		c.SweepScheduler,
		c.ReferralSetting,
		c.Metrics,
	)
	c.ReferralAttributionService = service.NewReferralAttributionService(
		c.ReferralCodeRepo,
		c.UserReferralRepo,
		c.ReferralVisitRepo,
		c.ReferralSetting,
		c.Metrics,
	)

	verifier, err := service.NewJWTIdentityVerifier(c.Config.Identity)
	if err != nil {
		logger.Errorw("provider_init_identity_verifier_failed", "error", err)
		panic(err)
	}
	if !verifier.Configured() {
		logger.Warnw("provider_identity_not_configured", "hint", "set identity.jwt_secret or identity.public_key_pem")
	}
	c.IdentityVerifier = verifier
}
