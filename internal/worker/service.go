package worker

import (
	"context"
	"errors"

	"github.com/lava-community/pwa-api/internal/config"
	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 过期访问清理服务
// 定时清理总是运行；队列开启时同时消费由访问写入触发的清理任务
type Service struct {
	loop   *SweepLoop
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewService 创建清理服务，队列关闭时 consumer 可以为 nil
func NewService(cfg *config.QueueConfig, loop *SweepLoop, consumer *Consumer) (*Service, error) {
	if loop == nil {
		return nil, errors.New("sweep loop is nil")
	}
	svc := &Service{loop: loop}
	if cfg == nil || !cfg.Enabled {
		logger.Warnw("worker_queue_disabled", "sweep_interval", loop.interval.String())
		return svc, nil
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	serverCfg.Logger = newAsynqLogger()
	svc.server = asynq.NewServer(opt, serverCfg)
	svc.mux = asynq.NewServeMux()
	consumer.Register(svc.mux)
	return svc, nil
}

// Name 服务名称
func (s *Service) Name() string {
	return "worker"
}

// QueueEnabled 是否消费队列任务
func (s *Service) QueueEnabled() bool {
	return s != nil && s.server != nil
}

// Start 启动队列消费者后进入定时清理循环，ctx 结束时返回
// asynq 以非阻塞方式启动，信号由 Runner 统一处理
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.loop == nil {
		return errors.New("worker not initialized")
	}
	if s.server != nil {
		if err := s.server.Start(s.mux); err != nil {
			return err
		}
		logger.Infow("worker_queue_consumer_started")
	}
	return s.loop.Start(ctx)
}

// Stop 关闭队列消费者，定时循环随 ctx 退出
func (s *Service) Stop(context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	logger.Infow("worker_queue_consumer_stopped")
	return nil
}
