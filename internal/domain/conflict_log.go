package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ConflictLog 是已解决冲突的审计记录，由后台任务写入数据库。
// 活跃冲突本身只存在于内存中，这张表只用于事后追溯。
type ConflictLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ConflictID    string    `gorm:"uniqueIndex;size:64;not null" json:"conflictId"`
	TripID        string    `gorm:"index;size:191;not null" json:"tripId"`
	EntityType    string    `gorm:"size:20;not null" json:"entityType"`
	EntityID      string    `gorm:"index;size:191;not null" json:"entityId"`
	BaseUserID    string    `gorm:"size:191;not null" json:"baseUserId"`
	ConflictsWith string    `gorm:"type:text" json:"conflictsWith"` // 逗号分隔的用户 ID
	Strategy      string    `gorm:"size:50;not null" json:"strategy"`
	Resolution    string    `gorm:"size:20;not null" json:"resolution"`
	Winner        string    `gorm:"size:191" json:"winner,omitempty"`
	MergedChanges string    `gorm:"type:text" json:"mergedChanges,omitempty"` // JSON
	ResolvedBy    string    `gorm:"size:191" json:"resolvedBy"`
	DetectedAt    time.Time `gorm:"not null" json:"detectedAt"`
	ResolvedAt    time.Time `gorm:"index;not null" json:"resolvedAt"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// NewConflictLog 根据已解决的冲突和解决结果构造审计记录。
func NewConflictLog(c ConflictEvent, res ConflictResolution) (ConflictLog, error) {
	if !c.Resolved || c.ResolvedAt == nil {
		return ConflictLog{}, fmt.Errorf("conflict %s is not resolved", c.ID)
	}
	merged := ""
	if res.MergedChanges != nil {
		b, err := json.Marshal(res.MergedChanges)
		if err != nil {
			return ConflictLog{}, fmt.Errorf("failed to marshal merged changes: %w", err)
		}
		merged = string(b)
	}
	return ConflictLog{
		ConflictID:    c.ID,
		TripID:        c.TripID,
		EntityType:    string(c.EntityType),
		EntityID:      c.EntityID,
		BaseUserID:    c.UserID,
		ConflictsWith: strings.Join(c.ConflictsWith, ","),
		Strategy:      string(res.Strategy),
		Resolution:    string(c.Resolution),
		Winner:        res.Winner,
		MergedChanges: merged,
		ResolvedBy:    c.ResolvedBy,
		DetectedAt:    c.Timestamp,
		ResolvedAt:    *c.ResolvedAt,
	}, nil
}
