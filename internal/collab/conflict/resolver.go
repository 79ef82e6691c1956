package conflict

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// ErrConflictNotFound 表示活跃冲突索引中没有该 id。
var ErrConflictNotFound = errors.New("conflict not found")

// 已解决冲突 id 的保留时间，晚到的 conflict-detected 在此期间不会被重新加入
const resolvedRetention = time.Hour

// DefaultStrategy 返回实体类型的默认解决策略。
func DefaultStrategy(t domain.EntityType) domain.Strategy {
	switch t {
	case domain.EntityActivity:
		return domain.StrategyManualMerge
	case domain.EntityComment:
		return domain.StrategyFirstWriteWins
	default:
		return domain.StrategyLastWriteWins
	}
}

// overrideKey 按行程区分实体，不同行程的同名实体互不影响
type overrideKey struct {
	tripID   string
	entityID string
}

// Resolver 持有本进程内的活跃冲突索引、按实体覆盖的策略和最近解决的冲突 id。
// 三者都只存在于内存中，进程重启即丢失。
type Resolver struct {
	mu        sync.Mutex
	active    map[string][]*domain.ConflictEvent
	overrides map[overrideKey]domain.Strategy
	resolved  map[string]time.Time

	now func() time.Time
	log *logrus.Entry
}

// ResolverOption 配置 Resolver。
type ResolverOption func(*Resolver)

// WithClock 替换 resolvedAt 使用的时钟。
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger 设置日志条目。
func WithLogger(log *logrus.Entry) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver 创建一个独立的 Resolver 实例。
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		active:    make(map[string][]*domain.ConflictEvent),
		overrides: make(map[overrideKey]domain.Strategy),
		resolved:  make(map[string]time.Time),
		now:       time.Now,
		log:       logrus.WithField("component", "conflict_resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SelectStrategy 按 显式参数 -> 本行程内的实体覆盖 -> 实体类型默认 的顺序选出策略。
func (r *Resolver) SelectStrategy(c domain.ConflictEvent, explicit domain.Strategy) domain.Strategy {
	if explicit != "" {
		return explicit
	}
	r.mu.Lock()
	override, ok := r.overrides[overrideKey{c.TripID, c.EntityID}]
	r.mu.Unlock()
	if ok {
		return override
	}
	return DefaultStrategy(c.EntityType)
}

// Resolve 对冲突应用策略并返回结果，不修改冲突本身。
// 需要更多输入时返回 RequiresUserInput=true；已经解决的冲突原样返回 AlreadyResolved=true。
func (r *Resolver) Resolve(c domain.ConflictEvent, strategy domain.Strategy, input *domain.UserInput) domain.ConflictResolution {
	selected := r.SelectStrategy(c, strategy)
	if !selected.Known() {
		r.log.WithFields(logrus.Fields{
			"conflict_id": c.ID,
			"strategy":    string(selected),
		}).Warn("Unknown resolution strategy, falling back to last-write-wins")
		selected = domain.StrategyLastWriteWins
	}
	if c.Resolved {
		return domain.ConflictResolution{Strategy: selected, AlreadyResolved: true}
	}

	switch selected {
	case domain.StrategyFirstWriteWins:
		return domain.ConflictResolution{Strategy: selected, Winner: c.UserID}
	case domain.StrategyManualMerge:
		if input == nil || input.ConflictingChanges == nil {
			return domain.ConflictResolution{Strategy: selected, RequiresUserInput: true}
		}
		return domain.ConflictResolution{
			Strategy:      selected,
			MergedChanges: Merge(c.Changes, input.ConflictingChanges),
		}
	case domain.StrategyUserChoice:
		if input == nil || input.Winner == "" {
			return domain.ConflictResolution{Strategy: selected, RequiresUserInput: true}
		}
		return domain.ConflictResolution{Strategy: selected, Winner: input.Winner}
	default:
		// last-write-wins 沿用既有行为：胜者是基准（最早）事件的操作者，
		// 与 first-write-wins 相同。有意保留。
		return domain.ConflictResolution{Strategy: domain.StrategyLastWriteWins, Winner: c.UserID}
	}
}

// MarkResolved 在结果为最终结果时把冲突标记为已解决，返回是否发生了修改。
// 已解决的冲突不会被再次修改。
func (r *Resolver) MarkResolved(c *domain.ConflictEvent, res domain.ConflictResolution, resolvedBy string) bool {
	if c == nil || c.Resolved || res.RequiresUserInput || res.AlreadyResolved {
		return false
	}
	now := r.now()
	c.Resolved = true
	c.ResolvedAt = &now
	c.ResolvedBy = resolvedBy
	if res.Strategy == domain.StrategyManualMerge {
		c.Resolution = domain.ResolutionMerge
	} else {
		c.Resolution = domain.ResolutionOverride
	}
	return true
}

// ResolveByID 在持锁状态下解决索引中的冲突，结果为最终结果时同时标记已解决。
// 返回更新后的冲突副本。
func (r *Resolver) ResolveByID(conflictID string, strategy domain.Strategy, input *domain.UserInput, resolvedBy string) (domain.ConflictEvent, domain.ConflictResolution, error) {
	r.mu.Lock()
	stored := r.findLocked(conflictID)
	if stored == nil {
		r.mu.Unlock()
		return domain.ConflictEvent{}, domain.ConflictResolution{}, ErrConflictNotFound
	}
	snapshot := *stored
	r.mu.Unlock()

	res := r.Resolve(snapshot, strategy, input)

	r.mu.Lock()
	defer r.mu.Unlock()
	// 两次加锁之间可能已被别人解决
	if stored.Resolved && !res.AlreadyResolved {
		res = domain.ConflictResolution{Strategy: res.Strategy, AlreadyResolved: true}
	}
	if r.MarkResolved(stored, res, resolvedBy) {
		r.rememberLocked(conflictID)
		r.log.WithFields(logrus.Fields{
			"conflict_id": conflictID,
			"entity_id":   stored.EntityID,
			"strategy":    string(res.Strategy),
			"resolved_by": resolvedBy,
		}).Info("Conflict resolved")
	}
	return copyConflict(stored), res, nil
}

// ApplyResolved 把在别处完成的解决结果同步到本地索引。返回本地记录是否被修改。
func (r *Resolver) ApplyResolved(c domain.ConflictEvent) bool {
	if !c.Resolved {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// 先于 conflict-detected 到达时也记住，之后的 AddConflict 会拒绝它
	r.rememberLocked(c.ID)
	stored := r.findLocked(c.ID)
	if stored == nil || stored.Resolved {
		return false
	}
	stored.Resolved = true
	stored.Resolution = c.Resolution
	stored.ResolvedBy = c.ResolvedBy
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		stored.ResolvedAt = &at
	} else {
		now := r.now()
		stored.ResolvedAt = &now
	}
	return true
}

// SetResolutionStrategy 为行程内的实体设置覆盖策略。
func (r *Resolver) SetResolutionStrategy(tripID, entityID string, s domain.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[overrideKey{tripID, entityID}] = s
}

// ResolutionStrategy 返回行程内实体的覆盖策略。
func (r *Resolver) ResolutionStrategy(tripID, entityID string) (domain.Strategy, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.overrides[overrideKey{tripID, entityID}]
	return s, ok
}

// AddConflict 把冲突加入实体的活跃列表。
// id 已存在、冲突已解决或 id 最近被解决过时不加入并返回 false。
func (r *Resolver) AddConflict(entityID string, c domain.ConflictEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Resolved {
		return false
	}
	if c.ID != "" {
		if _, done := r.resolved[c.ID]; done || r.findLocked(c.ID) != nil {
			return false
		}
	}
	stored := copyConflict(&c)
	r.active[entityID] = append(r.active[entityID], &stored)
	return true
}

// ActiveConflicts 返回实体当前索引中的冲突副本。
func (r *Resolver) ActiveConflicts(entityID string) []domain.ConflictEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.active[entityID]
	out := make([]domain.ConflictEvent, 0, len(list))
	for _, c := range list {
		out = append(out, copyConflict(c))
	}
	return out
}

// FindConflict 按 id 查找活跃冲突。
func (r *Resolver) FindConflict(conflictID string) (domain.ConflictEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.findLocked(conflictID)
	if c == nil {
		return domain.ConflictEvent{}, false
	}
	return copyConflict(c), true
}

// RemoveResolvedConflicts 删除实体下已解决的冲突，列表为空时删除整个实体条目。
// 返回删除的条数。
func (r *Resolver) RemoveResolvedConflicts(entityID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, ok := r.active[entityID]
	if !ok {
		return 0
	}
	kept := list[:0]
	for _, c := range list {
		if !c.Resolved {
			kept = append(kept, c)
		}
	}
	removed := len(list) - len(kept)
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	if len(kept) == 0 {
		delete(r.active, entityID)
	} else {
		r.active[entityID] = kept
	}
	return removed
}

// EntityIDs 返回有活跃冲突的实体 id，按字典序排列。
func (r *Resolver) EntityIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// rememberLocked 记录已解决的 id，并清理超过保留时间的旧记录
func (r *Resolver) rememberLocked(conflictID string) {
	if conflictID == "" {
		return
	}
	now := r.now()
	for id, at := range r.resolved {
		if now.Sub(at) > resolvedRetention {
			delete(r.resolved, id)
		}
	}
	r.resolved[conflictID] = now
}

func (r *Resolver) findLocked(conflictID string) *domain.ConflictEvent {
	for _, list := range r.active {
		for _, c := range list {
			if c.ID == conflictID {
				return c
			}
		}
	}
	return nil
}

func copyConflict(c *domain.ConflictEvent) domain.ConflictEvent {
	out := *c
	out.Changes = c.Changes.Clone()
	out.ConflictsWith = append([]string(nil), c.ConflictsWith...)
	if c.ResolvedAt != nil {
		at := *c.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}
