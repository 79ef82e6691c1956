package conflict_test

import (
	"sync"
	"testing"
	"time"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/conflict"
	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newResolver() *conflict.Resolver {
	return conflict.NewResolver(conflict.WithClock(func() time.Time { return fixedNow }))
}

func sampleConflict(entity domain.EntityType) domain.ConflictEvent {
	return domain.ConflictEvent{
		ID:            "c-1",
		Type:          domain.ConflictConcurrentUpdate,
		TripID:        "trip-1",
		EntityType:    entity,
		EntityID:      "ent-1",
		UserID:        "user1",
		UserName:      "Ana",
		Timestamp:     t0,
		Changes:       domain.Fields{"name": "Museum"},
		ConflictsWith: []string{"user2"},
	}
}

func TestResolver_DefaultStrategyByEntityType(t *testing.T) {
	r := newResolver()
	assert.Equal(t, domain.StrategyLastWriteWins, r.SelectStrategy(sampleConflict(domain.EntityTrip), ""))
	assert.Equal(t, domain.StrategyManualMerge, r.SelectStrategy(sampleConflict(domain.EntityActivity), ""))
	assert.Equal(t, domain.StrategyFirstWriteWins, r.SelectStrategy(sampleConflict(domain.EntityComment), ""))
}

func TestResolver_StrategyPrecedence(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityActivity)

	r.SetResolutionStrategy("trip-1", "ent-1", domain.StrategyUserChoice)
	assert.Equal(t, domain.StrategyUserChoice, r.SelectStrategy(c, ""), "覆盖策略优先于默认值")
	assert.Equal(t, domain.StrategyFirstWriteWins, r.SelectStrategy(c, domain.StrategyFirstWriteWins), "显式参数优先于覆盖策略")

	s, ok := r.ResolutionStrategy("trip-1", "ent-1")
	assert.True(t, ok)
	assert.Equal(t, domain.StrategyUserChoice, s)
}

func TestResolver_OverrideIsScopedToTrip(t *testing.T) {
	r := newResolver()
	r.SetResolutionStrategy("trip-A", "trip-B", domain.StrategyFirstWriteWins)
	r.SetResolutionStrategy("trip-A", "ent-1", domain.StrategyUserChoice)

	tripB := domain.ConflictEvent{TripID: "trip-B", EntityType: domain.EntityTrip, EntityID: "trip-B"}
	assert.Equal(t, domain.StrategyLastWriteWins, r.SelectStrategy(tripB, ""))

	c := sampleConflict(domain.EntityActivity) // trip-1 / ent-1
	assert.Equal(t, domain.StrategyManualMerge, r.SelectStrategy(c, ""))
	c.TripID = "trip-A"
	assert.Equal(t, domain.StrategyUserChoice, r.SelectStrategy(c, ""))

	_, ok := r.ResolutionStrategy("trip-B", "trip-B")
	assert.False(t, ok)
}

func TestResolver_LastAndFirstWriteWinsNameBaseActor(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityTrip)

	lww := r.Resolve(c, domain.StrategyLastWriteWins, nil)
	assert.Equal(t, "user1", lww.Winner)
	assert.False(t, lww.RequiresUserInput)

	fww := r.Resolve(c, domain.StrategyFirstWriteWins, nil)
	assert.Equal(t, "user1", fww.Winner)
	assert.False(t, fww.RequiresUserInput)
}

func TestResolver_UnknownStrategyFallsBackToLastWriteWins(t *testing.T) {
	res := newResolver().Resolve(sampleConflict(domain.EntityActivity), domain.Strategy("coin-flip"), nil)
	assert.Equal(t, domain.StrategyLastWriteWins, res.Strategy)
	assert.Equal(t, "user1", res.Winner)
	assert.False(t, res.RequiresUserInput)
}

func TestResolver_ManualMergeNeedsInput(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityActivity)

	res := r.Resolve(c, "", nil)
	assert.True(t, res.RequiresUserInput)
	assert.Nil(t, res.MergedChanges)

	res = r.Resolve(c, "", &domain.UserInput{ConflictingChanges: domain.Fields{"name": "Gallery", "time": "10:00"}})
	assert.False(t, res.RequiresUserInput)
	assert.Equal(t, domain.Fields{"name": "Museum", "time": "10:00"}, res.MergedChanges)
}

func TestResolver_UserChoice(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityTrip)

	res := r.Resolve(c, domain.StrategyUserChoice, &domain.UserInput{})
	assert.True(t, res.RequiresUserInput)

	res = r.Resolve(c, domain.StrategyUserChoice, &domain.UserInput{Winner: "user2"})
	assert.False(t, res.RequiresUserInput)
	assert.Equal(t, "user2", res.Winner)
}

func TestResolver_MarkResolved(t *testing.T) {
	r := newResolver()

	merged := sampleConflict(domain.EntityActivity)
	require.True(t, r.MarkResolved(&merged, domain.ConflictResolution{Strategy: domain.StrategyManualMerge}, "user2"))
	assert.True(t, merged.Resolved)
	assert.Equal(t, domain.ResolutionMerge, merged.Resolution)
	assert.Equal(t, "user2", merged.ResolvedBy)
	require.NotNil(t, merged.ResolvedAt)
	assert.Equal(t, fixedNow, *merged.ResolvedAt)

	overridden := sampleConflict(domain.EntityTrip)
	require.True(t, r.MarkResolved(&overridden, domain.ConflictResolution{Strategy: domain.StrategyUserChoice, Winner: "user2"}, "user1"))
	assert.Equal(t, domain.ResolutionOverride, overridden.Resolution)

	pending := sampleConflict(domain.EntityTrip)
	assert.False(t, r.MarkResolved(&pending, domain.ConflictResolution{RequiresUserInput: true}, "user1"))
	assert.False(t, pending.Resolved)
	assert.Nil(t, pending.ResolvedAt)
	assert.Empty(t, pending.Resolution)
}

func TestResolver_ResolutionFinality(t *testing.T) {
	clock := fixedNow
	r := conflict.NewResolver(conflict.WithClock(func() time.Time { return clock }))
	require.True(t, r.AddConflict("ent-1", sampleConflict(domain.EntityActivity)))

	first, res, err := r.ResolveByID("c-1", domain.StrategyManualMerge, &domain.UserInput{ConflictingChanges: domain.Fields{}}, "user1")
	require.NoError(t, err)
	require.True(t, first.Resolved)
	assert.False(t, res.AlreadyResolved)

	clock = fixedNow.Add(time.Hour)
	second, res, err := r.ResolveByID("c-1", domain.StrategyLastWriteWins, nil, "user2")
	require.NoError(t, err)
	assert.True(t, res.AlreadyResolved)
	assert.Equal(t, first.Resolution, second.Resolution)
	assert.Equal(t, *first.ResolvedAt, *second.ResolvedAt)
	assert.Equal(t, "user1", second.ResolvedBy)

	// 直接对已解决的值调用 Resolve 和 MarkResolved 也不会产生修改
	again := r.Resolve(second, domain.StrategyUserChoice, &domain.UserInput{Winner: "user2"})
	assert.True(t, again.AlreadyResolved)
	assert.False(t, r.MarkResolved(&second, domain.ConflictResolution{Strategy: domain.StrategyUserChoice}, "user3"))
	assert.Equal(t, fixedNow, *second.ResolvedAt)
}

func TestResolver_ResolveByID_NotFound(t *testing.T) {
	_, _, err := newResolver().ResolveByID("missing", "", nil, "user1")
	assert.ErrorIs(t, err, conflict.ErrConflictNotFound)
}

func TestResolver_ActiveConflictIndex(t *testing.T) {
	r := newResolver()
	c1 := sampleConflict(domain.EntityActivity)
	c2 := sampleConflict(domain.EntityActivity)
	c2.ID = "c-2"

	assert.True(t, r.AddConflict("ent-1", c1))
	assert.True(t, r.AddConflict("ent-1", c2))
	assert.False(t, r.AddConflict("ent-1", c1), "相同 id 不应重复加入")
	assert.Len(t, r.ActiveConflicts("ent-1"), 2)
	assert.Equal(t, []string{"ent-1"}, r.EntityIDs())

	_, _, err := r.ResolveByID("c-1", domain.StrategyFirstWriteWins, nil, "user1")
	require.NoError(t, err)

	assert.Equal(t, 1, r.RemoveResolvedConflicts("ent-1"))
	remaining := r.ActiveConflicts("ent-1")
	require.Len(t, remaining, 1)
	assert.Equal(t, "c-2", remaining[0].ID)

	_, _, err = r.ResolveByID("c-2", domain.StrategyFirstWriteWins, nil, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, r.RemoveResolvedConflicts("ent-1"))
	assert.Empty(t, r.ActiveConflicts("ent-1"))
	assert.Empty(t, r.EntityIDs(), "列表为空后实体条目应被删除")
	assert.Zero(t, r.RemoveResolvedConflicts("ent-1"))
}

func TestResolver_ApplyResolved(t *testing.T) {
	r := newResolver()
	require.True(t, r.AddConflict("ent-1", sampleConflict(domain.EntityTrip)))

	remote := sampleConflict(domain.EntityTrip)
	at := fixedNow.Add(-time.Minute)
	remote.Resolved = true
	remote.Resolution = domain.ResolutionOverride
	remote.ResolvedBy = "user2"
	remote.ResolvedAt = &at

	assert.True(t, r.ApplyResolved(remote))
	assert.False(t, r.ApplyResolved(remote), "重复同步不应再次修改")

	got, ok := r.FindConflict("c-1")
	require.True(t, ok)
	assert.True(t, got.Resolved)
	assert.Equal(t, at, *got.ResolvedAt)
}

func TestResolver_ResolvedBeforeDetectedIsNotReAdded(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityActivity)

	resolved := c
	resolved.Resolved = true
	resolved.Resolution = domain.ResolutionMerge
	assert.False(t, r.ApplyResolved(resolved), "本地还没有该冲突")

	assert.False(t, r.AddConflict("ent-1", c))
	assert.Empty(t, r.ActiveConflicts("ent-1"))
	assert.False(t, r.AddConflict("ent-1", resolved), "已解决的冲突不进入活跃列表")
}

func TestResolver_LocallyResolvedIDIsNotReAdded(t *testing.T) {
	r := newResolver()
	c := sampleConflict(domain.EntityTrip)
	require.True(t, r.AddConflict("ent-1", c))
	_, _, err := r.ResolveByID("c-1", domain.StrategyFirstWriteWins, nil, "user1")
	require.NoError(t, err)
	require.Equal(t, 1, r.RemoveResolvedConflicts("ent-1"))

	assert.False(t, r.AddConflict("ent-1", c))
	assert.Empty(t, r.ActiveConflicts("ent-1"))
}

func TestResolver_ResolvedIDsExpire(t *testing.T) {
	now := fixedNow
	r := conflict.NewResolver(conflict.WithClock(func() time.Time { return now }))
	resolved := sampleConflict(domain.EntityTrip)
	resolved.Resolved = true
	r.ApplyResolved(resolved)

	now = now.Add(2 * time.Hour)
	other := sampleConflict(domain.EntityTrip)
	other.ID = "c-2"
	other.Resolved = true
	r.ApplyResolved(other) // 触发清理

	assert.True(t, r.AddConflict("ent-1", sampleConflict(domain.EntityTrip)), "超过保留时间后 id 被遗忘")

	other.Resolved = false
	assert.False(t, r.AddConflict("ent-1", other))
}

func TestResolver_ConcurrentResolveMarksOnce(t *testing.T) {
	r := newResolver()
	require.True(t, r.AddConflict("ent-1", sampleConflict(domain.EntityTrip)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	finals := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, res, err := r.ResolveByID("c-1", "", nil, "someone")
			if err == nil && !res.AlreadyResolved {
				mu.Lock()
				finals++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, finals)
}

// 行程 act-1：A 在 t=0 改为 Museum，B 在 t=1000ms 改为 Gallery。
func TestScenario_MuseumGallery(t *testing.T) {
	a := activityEdit("userA", 0, "act-1", domain.Fields{"name": "Museum"})
	b := activityEdit("userB", 1000*time.Millisecond, "act-1", domain.Fields{"name": "Gallery"})

	detected := newDetector().Detect([]domain.CollaborationEvent{a, b})
	require.Len(t, detected, 1)
	c := detected[0]
	assert.Equal(t, "userA", c.UserID)
	assert.Equal(t, domain.Fields{"name": "Museum"}, c.Changes)
	assert.Equal(t, []string{"userB"}, c.ConflictsWith)

	r := newResolver()
	require.True(t, r.AddConflict(c.EntityID, c))

	_, res, err := r.ResolveByID(c.ID, domain.StrategyManualMerge, nil, "userA")
	require.NoError(t, err)
	assert.True(t, res.RequiresUserInput)
	stillOpen, _ := r.FindConflict(c.ID)
	assert.False(t, stillOpen.Resolved)

	resolved, res, err := r.ResolveByID(c.ID, domain.StrategyManualMerge,
		&domain.UserInput{ConflictingChanges: domain.Fields{"name": "Gallery"}}, "userA")
	require.NoError(t, err)
	assert.False(t, res.RequiresUserInput)
	assert.Equal(t, domain.Fields{"name": "Museum"}, res.MergedChanges)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, domain.ResolutionMerge, resolved.Resolution)
	assert.NotNil(t, resolved.ResolvedAt)
}
