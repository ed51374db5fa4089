package app

import (
	"context"
	"errors"
	"os/signal"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConfigMissing = errors.New("config is nil")
	ErrUnknownMode   = errors.New("unknown mode")
	ErrNoServices    = errors.New("no services to run")
)

// Service 由 Runner 管理生命周期的服务
// Start 阻塞直到 ctx 结束或出错；Stop 在 Runner 退出时按启动逆序调用
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runner 服务运行器
type Runner struct {
	services []Service
}

// NewRunner 创建服务运行器
func NewRunner(services ...Service) *Runner {
	return &Runner{services: services}
}

type serviceExit struct {
	name string
	err  error
}

// RunWithOptions 运行服务并在收到信号后优雅退出
func RunWithOptions(runner *Runner, opts Options) error {
	if runner == nil {
		return ErrNoServices
	}
	opts = normalizeOptions(opts)
	ctx := context.Background()
	if len(opts.Signals) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = signal.NotifyContext(ctx, opts.Signals...)
		defer cancel()
	}
	return runner.Run(ctx, opts.ShutdownTimeout, opts.Logger)
}

// Run 启动全部服务，任一服务退出或 ctx 结束时停止全部服务
// 服务正常返回 nil 同样触发整体退出，worker 与 http 必须同生共死
func (r *Runner) Run(ctx context.Context, stopTimeout time.Duration, log *zap.SugaredLogger) error {
	if r == nil || len(r.services) == 0 {
		return ErrNoServices
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	for i, svc := range r.services {
		if svc == nil {
			log.Errorw("app_service_nil", "index", i)
			return errors.New("service is nil")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan serviceExit, len(r.services))
	for _, svc := range r.services {
		go func(svc Service) {
			log.Infow("app_service_started", "service", svc.Name())
			exits <- serviceExit{name: svc.Name(), err: svc.Start(ctx)}
		}(svc)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("app_shutdown", "trigger", "signal")
		runErr = ctx.Err()
	case exit := <-exits:
		if exit.err != nil {
			log.Errorw("app_service_exited", "service", exit.name, "error", exit.err)
		} else {
			log.Infow("app_service_exited", "service", exit.name)
		}
		log.Infow("app_shutdown", "trigger", exit.name)
		runErr = exit.err
	}

	cancel()
	r.stopAll(stopTimeout, log)
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (r *Runner) stopAll(timeout time.Duration, log *zap.SugaredLogger) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()

	for i := len(r.services) - 1; i >= 0; i-- {
		svc := r.services[i]
		begin := time.Now()
		if err := svc.Stop(stopCtx); err != nil {
			log.Errorw("app_service_stop_failed", "service", svc.Name(), "error", err)
			continue
		}
		log.Infow("app_service_stopped", "service", svc.Name(), "elapsed_ms", time.Since(begin).Milliseconds())
	}
}
