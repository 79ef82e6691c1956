// Package conflict 检测同一共享实体上的并发修改，并按策略给出解决结果。
package conflict

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// DefaultWindow 是两个不同用户对同一实体的修改被视为冲突的最大时间差。
const DefaultWindow = 5000 * time.Millisecond

// Detector 把一批协作事件按目标实体分桶，找出窗口内来自不同用户的事件簇。
// Detect 只依赖传入的事件，不保留任何状态。
type Detector struct {
	// Window 为包含边界：时间差恰好等于 Window 也算冲突。
	Window time.Duration
	// NewID 生成冲突 id，默认使用 uuid。
	NewID func() string
}

// NewDetector 创建 Detector，window 为零时使用 DefaultWindow。
func NewDetector(window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{Window: window, NewID: uuid.NewString}
}

type bucketKey struct {
	tripID   string
	entityID string
}

type bucket struct {
	entityType domain.EntityType
	entityID   string
	events     []domain.CollaborationEvent
}

// Detect 返回输入中所有的冲突，顺序为各实体首次出现的顺序。
// 缺少 userId 或时间戳的事件不参与任何冲突。
func (d *Detector) Detect(events []domain.CollaborationEvent) []domain.ConflictEvent {
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	var keys []bucketKey
	buckets := make(map[bucketKey]*bucket)
	for _, ev := range events {
		if !ev.Wellformed() {
			continue
		}
		entityType, entityID := ev.Target()
		key := bucketKey{tripID: ev.TripID, entityID: string(entityType) + ":" + entityID}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{entityType: entityType, entityID: entityID}
			buckets[key] = b
			keys = append(keys, key)
		}
		b.events = append(b.events, ev)
	}

	conflicts := make([]domain.ConflictEvent, 0)
	for _, key := range keys {
		b := buckets[key]
		for _, cluster := range clusters(b.events, window) {
			conflicts = append(conflicts, build(newID(), key.tripID, b, cluster))
		}
	}
	return conflicts
}

// clusters 返回按时间排序后的各事件簇，成员完全相同的簇只保留一个。
func clusters(events []domain.CollaborationEvent, window time.Duration) [][]domain.CollaborationEvent {
	if len(events) < 2 {
		return nil
	}
	sorted := append([]domain.CollaborationEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	seen := make(map[string]struct{})
	var out [][]domain.CollaborationEvent
	for i := range sorted {
		members := []int{i}
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].UserID == sorted[i].UserID {
				continue
			}
			if sorted[j].Timestamp.Sub(sorted[i].Timestamp) > window {
				break
			}
			members = append(members, j)
		}
		if len(members) < 2 {
			continue
		}
		cluster := make([]domain.CollaborationEvent, len(members))
		for k, idx := range members {
			cluster[k] = sorted[idx]
		}
		sig := signature(cluster)
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		out = append(out, cluster)
	}
	return out
}

// signature 按事件内容而不是下标标识一个簇，同一事件被重复投递时生成的簇会被视为相同。
func signature(cluster []domain.CollaborationEvent) string {
	parts := make([]string, len(cluster))
	for i, ev := range cluster {
		parts[i] = ev.UserID + "@" + strconv.FormatInt(ev.Timestamp.UnixNano(), 10) + "#" + string(ev.Type)
	}
	return strings.Join(parts, ",")
}

// build 以簇中最早的事件为基准构造冲突记录。cluster 已按时间排序。
func build(id, tripID string, b *bucket, cluster []domain.CollaborationEvent) domain.ConflictEvent {
	base := cluster[0]
	others := make([]string, 0, len(cluster)-1)
	seen := map[string]struct{}{base.UserID: {}}
	for _, ev := range cluster[1:] {
		if _, dup := seen[ev.UserID]; dup {
			continue
		}
		seen[ev.UserID] = struct{}{}
		others = append(others, ev.UserID)
	}
	return domain.ConflictEvent{
		ID:            id,
		Type:          domain.ConflictConcurrentUpdate,
		TripID:        tripID,
		EntityType:    b.entityType,
		EntityID:      b.entityID,
		UserID:        base.UserID,
		UserName:      base.UserName,
		Timestamp:     base.Timestamp,
		Changes:       base.Data.Changes.Clone(),
		ConflictsWith: others,
	}
}
