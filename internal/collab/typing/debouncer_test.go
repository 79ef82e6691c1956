package typing_test

import (
	"sync"
	"testing"
	"time"

	"github.com/hasanmk52/terra-voyage-sub003/internal/collab/typing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 记录回调的调用次数，供断言使用。
type recorder struct {
	mu        sync.Mutex
	starts    int
	stops     int
	locations []string
}

func (r *recorder) start(location string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.locations = append(r.locations, location)
}

func (r *recorder) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops
}

func TestDebouncer_CollapsesRapidStarts(t *testing.T) {
	rec := &recorder{}
	window := 80 * time.Millisecond
	d := typing.NewDebouncer(rec.start, rec.stop, window)
	defer d.Close()

	// 每次间隔小于窗口，stop 不应提前触发
	for i := 0; i < 5; i++ {
		d.Start("activity:act-1")
		time.Sleep(window / 4)
	}
	starts, stops := rec.counts()
	assert.Equal(t, 1, starts, "只应发出第一次 start")
	assert.Equal(t, 0, stops, "窗口内不应发出 stop")
	assert.True(t, d.Active())

	require.Eventually(t, func() bool {
		_, s := rec.counts()
		return s == 1
	}, time.Second, 5*time.Millisecond)

	starts, stops = rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
	assert.False(t, d.Active())
	assert.Equal(t, []string{"activity:act-1"}, rec.locations)
}

func TestDebouncer_StopEmitsImmediatelyOnce(t *testing.T) {
	rec := &recorder{}
	d := typing.NewDebouncer(rec.start, rec.stop, 50*time.Millisecond)

	d.Start("")
	d.Stop()
	d.Stop() // 已停止，再次调用不应重复发出

	time.Sleep(120 * time.Millisecond) // 等过窗口，确认定时器已被取消
	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, stops)
}

func TestDebouncer_StopWithoutStartIsNoop(t *testing.T) {
	rec := &recorder{}
	d := typing.NewDebouncer(rec.start, rec.stop, 0)

	d.Stop()

	starts, stops := rec.counts()
	assert.Zero(t, starts)
	assert.Zero(t, stops)
}

func TestDebouncer_RestartsAfterTimeout(t *testing.T) {
	rec := &recorder{}
	d := typing.NewDebouncer(rec.start, rec.stop, 30*time.Millisecond)
	defer d.Close()

	d.Start("a")
	require.Eventually(t, func() bool { _, s := rec.counts(); return s == 1 }, time.Second, 5*time.Millisecond)

	d.Start("b")
	starts, _ := rec.counts()
	assert.Equal(t, 2, starts, "超时后再次输入应重新发出 start")
}

func TestDebouncer_CloseCancelsPendingStop(t *testing.T) {
	rec := &recorder{}
	d := typing.NewDebouncer(rec.start, rec.stop, 30*time.Millisecond)

	d.Start("a")
	d.Close()
	time.Sleep(90 * time.Millisecond)

	starts, stops := rec.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, 0, stops, "Close 之后不应有遗留的 stop 回调")

	d.Start("b")
	starts, _ = rec.counts()
	assert.Equal(t, 1, starts, "Close 之后的 Start 应被忽略")
}

func TestNewDebouncer_PanicsOnNilCallbacks(t *testing.T) {
	assert.Panics(t, func() { typing.NewDebouncer(nil, func() {}, 0) })
	assert.Panics(t, func() { typing.NewDebouncer(func(string) {}, nil, 0) })
}
