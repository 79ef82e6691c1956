package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
	"github.com/hasanmk52/terra-voyage-sub003/internal/tasks"
)

// ConflictAuditHandler 把已解决冲突的审计记录写入数据库
type ConflictAuditHandler struct {
	logRepo repository.ConflictLogRepository
}

// NewConflictAuditHandler 创建 Handler 实例
func NewConflictAuditHandler(logRepo repository.ConflictLogRepository) *ConflictAuditHandler {
	return &ConflictAuditHandler{logRepo: logRepo}
}

// taskLogger 带上任务 id、类型和重试信息
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	queue, _ := asynq.GetQueueName(ctx)
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// ProcessTask 实现 asynq.Handler 接口
func (h *ConflictAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Info("Processing conflict audit task...")

	var payload tasks.ConflictAuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Log.ConflictID == "" || payload.Log.TripID == "" {
		logCtx.Error("Conflict audit payload is missing conflict or trip id")
		return fmt.Errorf("incomplete conflict log: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"conflict_id": payload.Log.ConflictID, "trip_id": payload.Log.TripID})

	if err := h.logRepo.SaveBatch(ctx, []domain.ConflictLog{payload.Log}); err != nil {
		// 任务重试时记录可能已经写入
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Info("Conflict log already stored, skipping")
			return nil
		}
		logCtx.WithError(err).Error("Failed to save conflict log")
		return fmt.Errorf("failed to save conflict log %s: %w", payload.Log.ConflictID, err)
	}

	logCtx.Info("Conflict audit task processed successfully")
	return nil
}
