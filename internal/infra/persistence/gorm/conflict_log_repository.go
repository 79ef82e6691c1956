package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

// 单次查询返回的最大审计记录数
const maxConflictLogPage = 200

// GormConflictLogRepository 是 ConflictLogRepository 接口的 GORM 实现
type GormConflictLogRepository struct {
	db *gorm.DB
}

// NewGormConflictLogRepository 创建 GormConflictLogRepository 实例
func NewGormConflictLogRepository(db *gorm.DB) *GormConflictLogRepository {
	if db == nil {
		panic("database connection cannot be nil for GormConflictLogRepository")
	}
	return &GormConflictLogRepository{db: db}
}

var _ repository.ConflictLogRepository = (*GormConflictLogRepository)(nil)

// SaveBatch 批量保存审计记录，GORM 的 Create 支持传入切片
func (r *GormConflictLogRepository) SaveBatch(ctx context.Context, logs []domain.ConflictLog) error {
	if len(logs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Create(&logs).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: failed to save conflict log batch (size %d): %w", len(logs), err)
	}
	return nil
}

// ListByTrip 按解决时间倒序返回行程的审计记录
func (r *GormConflictLogRepository) ListByTrip(ctx context.Context, tripID string, limit int) ([]domain.ConflictLog, error) {
	if limit <= 0 || limit > maxConflictLogPage {
		limit = maxConflictLogPage
	}
	var logs []domain.ConflictLog
	err := r.db.WithContext(ctx).
		Where("trip_id = ?", tripID).
		Order("resolved_at desc").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list conflict logs for trip %s: %w", tripID, err)
	}
	return logs, nil
}

// DeleteBefore 删除过期的审计记录
func (r *GormConflictLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("resolved_at < ?", cutoff).Delete(&domain.ConflictLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("gorm: delete conflict logs resolved before %v: %w", cutoff, result.Error)
	}
	return result.RowsAffected, nil
}
