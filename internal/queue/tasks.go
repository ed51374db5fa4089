package queue

import (
	"encoding/json"
	"time"

	"github.com/lava-community/pwa-api/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskReferralVisitSweep 过期推荐访问清理任务
	TaskReferralVisitSweep = constants.TaskReferralVisitSweep
)

// ReferralVisitSweepPayload 清理任务载荷
// Window 为按去重窗口取整后的时间，asynq.Unique 按 类型+队列+载荷 判重
type ReferralVisitSweepPayload struct {
	Window time.Time `json:"window"`
}

// SweepWindow 将时间按去重窗口向下取整
func SweepWindow(now time.Time) time.Time {
	return now.UTC().Truncate(time.Duration(constants.ReferralSweepUniqueSecs) * time.Second)
}

// NewReferralVisitSweepTask 创建清理任务
func NewReferralVisitSweepTask(payload ReferralVisitSweepPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralVisitSweep, body), nil
}
