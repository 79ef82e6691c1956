package tasks

import (
	"encoding/json"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// 定义任务类型常量
const (
	TypeConflictAudit    = "conflict:audit" // 已解决冲突的审计记录持久化
	TypeConflictLogPurge = "conflict:purge" // 周期性清理过期的审计记录
)

// ConflictAuditPayload 定义了审计任务的数据结构
type ConflictAuditPayload struct {
	Log domain.ConflictLog `json:"log"`
}

// NewConflictAuditTask 序列化审计任务的 payload
func NewConflictAuditTask(log domain.ConflictLog) ([]byte, error) {
	payloadBytes, err := json.Marshal(ConflictAuditPayload{Log: log})
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// ConflictLogPurgePayload 定义了清理任务的数据结构
type ConflictLogPurgePayload struct {
	RetentionDays int `json:"retentionDays"`
}

// NewConflictLogPurgeTask 序列化清理任务的 payload
func NewConflictLogPurgeTask(retentionDays int) ([]byte, error) {
	return json.Marshal(ConflictLogPurgePayload{RetentionDays: retentionDays})
}
