package service

import (
	"context"
	"time"

	"github.com/lava-community/pwa-api/internal/logger"
	"github.com/lava-community/pwa-api/internal/metrics"
	"github.com/lava-community/pwa-api/internal/repository"

	"github.com/hibiken/asynq"
)

// 清理触发来源
const (
	SweepTriggerInline = "inline"
	SweepTriggerQueue  = "queue"
	SweepTriggerTicker = "ticker"
)

// ReferralSweeper 过期访问记录清理
type ReferralSweeper struct {
	repo    repository.ReferralVisitRepository
	metrics *metrics.ReferralMetrics
	now     func() time.Time
}

// NewReferralSweeper 创建清理器
func NewReferralSweeper(repo repository.ReferralVisitRepository, m *metrics.ReferralMetrics) *ReferralSweeper {
	return &ReferralSweeper{repo: repo, metrics: m, now: time.Now}
}

// SweepExpired 删除 expires_at 早于当前时间的记录
func (s *ReferralSweeper) SweepExpired(ctx context.Context) int64 {
	return s.SweepExpiredBy(ctx, SweepTriggerInline)
}

// SweepExpiredBy 按触发来源清理，失败只记录日志并返回 0
func (s *ReferralSweeper) SweepExpiredBy(ctx context.Context, trigger string) int64 {
	if s == nil || s.repo == nil {
		return 0
	}
	deleted, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		logger.Warnw("referral_visit_sweep_failed", "trigger", trigger, "error", err)
		s.metrics.ObserveSweep(trigger, 0)
		return 0
	}
	if deleted > 0 {
		logger.Debugw("referral_visit_sweep_done", "trigger", trigger, "deleted", deleted)
	}
	s.metrics.ObserveSweep(trigger, deleted)
	return deleted
}

// SweepScheduler 访问写入时顺带触发清理
type SweepScheduler interface {
	ScheduleSweep(ctx context.Context)
}

type sweepQueue interface {
	Enabled() bool
	EnqueueReferralVisitSweep(opts ...asynq.Option) error
}

// QueueSweepScheduler 队列可用时投递去重任务，否则同步清理
type QueueSweepScheduler struct {
	queue   sweepQueue
	sweeper *ReferralSweeper
}

// NewQueueSweepScheduler 创建清理调度器，queue 可为 nil
func NewQueueSweepScheduler(queue sweepQueue, sweeper *ReferralSweeper) *QueueSweepScheduler {
	return &QueueSweepScheduler{queue: queue, sweeper: sweeper}
}

// ScheduleSweep 不返回错误，调度失败时退回同步清理
func (s *QueueSweepScheduler) ScheduleSweep(ctx context.Context) {
	if s == nil {
		return
	}
	if s.queue != nil && s.queue.Enabled() {
		err := s.queue.EnqueueReferralVisitSweep()
		if err == nil {
			return
		}
		logger.Warnw("referral_visit_sweep_enqueue_failed", "error", err)
	}
	s.sweeper.SweepExpiredBy(ctx, SweepTriggerInline)
}
