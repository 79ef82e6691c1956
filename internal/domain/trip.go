package domain

import "time"

// Trip 是外部持久层拥有的行程记录，本服务只读取它来做房间准入判断。
type Trip struct {
	ID          string    `gorm:"primaryKey;size:191"`
	UserID      string    `gorm:"index;size:191;not null"` // 行程创建者
	Title       string    `gorm:"size:255"`
	Destination string    `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 固定为外部 schema 中的表名。
func (Trip) TableName() string { return "trips" }

// TripCollaborator 记录被邀请参与某个行程的用户。
type TripCollaborator struct {
	ID     uint   `gorm:"primaryKey"`
	TripID string `gorm:"index:idx_trip_user,unique;size:191;not null"`
	UserID string `gorm:"index:idx_trip_user,unique;size:191;not null"`
	Role   string `gorm:"size:50;not null;default:viewer"` // owner / editor / viewer
}

func (TripCollaborator) TableName() string { return "trip_collaborators" }
