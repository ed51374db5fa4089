package worker

import (
	"context"
	"encoding/json"

	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/provider"
	"github.com/lava-community/pwa-api/internal/queue"
	"github.com/lava-community/pwa-api/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReferralVisitSweep, c.handleReferralVisitSweep)
}

// handleReferralVisitSweep 清理失败不重试，下一次访问写入或定时器会再次触发
func (c *Consumer) handleReferralVisitSweep(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_referral_visit_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReferralVisitSweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_referral_visit_sweep_unmarshal_failed", "error", err)
		}
	}
	if c.ReferralSweeper == nil {
		logger.Warnw("worker_referral_visit_sweep_skip_sweeper_nil", "window", payload.Window)
		return nil
	}
	deleted := c.ReferralSweeper.SweepExpiredBy(ctx, service.SweepTriggerQueue)
	logger.Debugw("worker_referral_visit_sweep_done", "window", payload.Window, "deleted", deleted)
	return nil
}
