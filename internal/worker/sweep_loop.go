package worker

import (
	"context"
	"errors"
	"time"

	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/service"
)

type visitSweeper interface {
	SweepExpiredBy(ctx context.Context, trigger string) int64
}

// SweepLoop 按固定间隔清理过期访问记录，不依赖队列
type SweepLoop struct {
	sweeper  visitSweeper
	interval time.Duration
}

// NewSweepLoop 创建定时清理循环
func NewSweepLoop(sweeper visitSweeper, interval time.Duration) *SweepLoop {
	return &SweepLoop{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Start 启动后立即清理一次，之后按间隔执行直到 ctx 结束
func (l *SweepLoop) Start(ctx context.Context) error {
	if l == nil || l.sweeper == nil {
		return errors.New("sweep loop not initialized")
	}
	if l.interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	runOnce := func() {
		deleted := l.sweeper.SweepExpiredBy(ctx, service.SweepTriggerTicker)
		if deleted > 0 {
			logger.Infow("worker_referral_visit_sweep_tick", "deleted", deleted)
		}
	}
	runOnce()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
