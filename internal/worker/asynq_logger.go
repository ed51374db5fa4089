package worker

import (
	"github.com/lava-community/pwa-api/internal/logger"

	"github.com/hibiken/asynq"
)

// asynqLogger 将 asynq 内部日志写入 zap，附带 component 字段
type asynqLogger struct{}

func newAsynqLogger() asynq.Logger {
	return asynqLogger{}
}

func (asynqLogger) Debug(args ...interface{}) {
	logger.SW("component", "asynq").Debug(args...)
}

func (asynqLogger) Info(args ...interface{}) {
	logger.SW("component", "asynq").Info(args...)
}

func (asynqLogger) Warn(args ...interface{}) {
	logger.SW("component", "asynq").Warn(args...)
}

func (asynqLogger) Error(args ...interface{}) {
	logger.SW("component", "asynq").Error(args...)
}

func (asynqLogger) Fatal(args ...interface{}) {
	logger.SW("component", "asynq").Fatal(args...)
}
