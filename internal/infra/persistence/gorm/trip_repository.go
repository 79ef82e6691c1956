package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/hasanmk52/terra-voyage-sub003/internal/repository"
)

// GormTripRepository 是 TripRepository 接口的 GORM 实现。
// trips 与 trip_collaborators 两张表由外部服务维护，这里只读。
type GormTripRepository struct {
	db *gorm.DB
}

// NewGormTripRepository 创建 GormTripRepository 实例
func NewGormTripRepository(db *gorm.DB) *GormTripRepository {
	if db == nil {
		panic("database connection cannot be nil for GormTripRepository")
	}
	return &GormTripRepository{db: db}
}

var _ repository.TripRepository = (*GormTripRepository)(nil)

// FindByID 实现根据行程 ID 查找行程
func (r *GormTripRepository) FindByID(ctx context.Context, id string) (*domain.Trip, error) {
	var trip domain.Trip
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&trip).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrTripNotFound
		}
		return nil, fmt.Errorf("gorm: find trip by id '%s': %w", id, err)
	}
	return &trip, nil
}

// IsCollaborator 实现判断用户是否被邀请参与行程
func (r *GormTripRepository) IsCollaborator(ctx context.Context, tripID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.TripCollaborator{}).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: check collaborator (trip %s, user %s): %w", tripID, userID, err)
	}
	return count > 0, nil
}
