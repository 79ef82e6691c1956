package repository

import (
	"context"
	"time"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// ConflictLogRepository 保存已解决冲突的审计记录。
type ConflictLogRepository interface {
	// SaveBatch 批量保存审计记录。ConflictID 重复时返回 ErrDuplicateEntry。
	SaveBatch(ctx context.Context, logs []domain.ConflictLog) error

	// ListByTrip 按解决时间倒序返回行程最近的审计记录。
	ListByTrip(ctx context.Context, tripID string, limit int) ([]domain.ConflictLog, error)

	// DeleteBefore 删除解决时间早于 cutoff 的记录，返回删除的条数。
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
