package app

import (
	"time"

	"github.com/lava-community/pwa-api/internal/config"
	"github.com/lava-community/pwa-api/internal/provider"
	"github.com/lava-community/pwa-api/internal/router"
	"github.com/lava-community/pwa-api/internal/worker"
)

// BuildRunner 构建服务运行器
func BuildRunner(cfg *config.Config, mode string) (*Runner, error) {
	opts := normalizeOptions(Options{Config: cfg, Mode: mode})
	if err := opts.validate(); err != nil {
		return nil, err
	}
	container := provider.NewContainer(cfg)
	return buildRunner(cfg, opts.Mode, container)
}

func buildRunner(cfg *config.Config, mode string, container *provider.Container) (*Runner, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	var services []Service

	if servesHTTP(mode) {
		engine := router.SetupRouter(cfg, container)
		services = append(services, NewHTTPService(cfg.Server, engine))
	}

	if sweepsVisits(mode) {
		loop := worker.NewSweepLoop(container.ReferralSweeper, container.ReferralSetting.SweepInterval())
		var consumer *worker.Consumer
		if cfg.Queue.Enabled {
			consumer = worker.NewConsumer(container)
		}
		workerService, err := worker.NewService(&cfg.Queue, loop, consumer)
		if err != nil {
			return nil, err
		}
		services = append(services, workerService)
	}

	if len(services) == 0 {
		return nil, ErrNoServices
	}
	return NewRunner(services...), nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = normalizeOptions(opts)
	if err := opts.validate(); err != nil {
		return err
	}

	runner, err := BuildRunner(opts.Config, opts.Mode)
	if err != nil {
		return err
	}

	opts.Logger.Infow("app_start",
		"mode", opts.Mode,
		"http", servesHTTP(opts.Mode),
		"sweeper", sweepsVisits(opts.Mode),
		"queue", opts.Config.Queue.Enabled,
		"started_at", time.Now().UTC(),
	)
	return RunWithOptions(runner, opts)
}
