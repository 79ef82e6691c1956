package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
	"github.com/hasanmk52/terra-voyage-sub003/internal/tasks"
)

// DefaultRetentionDays 是 payload 未指定保留天数时使用的值
const DefaultRetentionDays = 90

// ConflictLogPurgeHandler 处理周期性的审计记录清理任务
type ConflictLogPurgeHandler struct {
	logRepo repository.ConflictLogRepository
	now     func() time.Time
}

// NewConflictLogPurgeHandler 创建 Handler 实例
func NewConflictLogPurgeHandler(logRepo repository.ConflictLogRepository) *ConflictLogPurgeHandler {
	return &ConflictLogPurgeHandler{logRepo: logRepo, now: time.Now}
}

// ProcessTask 删除早于保留期限的审计记录
func (h *ConflictLogPurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	payload := tasks.ConflictLogPurgePayload{RetentionDays: DefaultRetentionDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = DefaultRetentionDays
	}

	cutoff := h.now().UTC().AddDate(0, 0, -payload.RetentionDays)
	deleted, err := h.logRepo.DeleteBefore(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Failed to purge conflict logs")
		return fmt.Errorf("failed to purge conflict logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	logCtx.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"deleted": deleted,
	}).Info("Conflict log purge task processed successfully")
	return nil
}
