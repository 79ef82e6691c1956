// Package typing 把原始的按键事件收敛为 start/stop 两个输入状态信号。
package typing

import (
	"sync"
	"time"
)

// DefaultWindow 是未指定时的防抖窗口。
const DefaultWindow = 1500 * time.Millisecond

// Debouncer 是尾随防抖状态机：第一次 Start 立即发出 start，
// 之后每次 Start 都会把 stop 推迟到最后一次调用后的 window。
// 每个 start 最终都恰好对应一个 stop（超时或显式 Stop）。
type Debouncer struct {
	start  func(location string)
	stop   func()
	window time.Duration

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewDebouncer 创建 Debouncer。window 为零时使用 DefaultWindow。
func NewDebouncer(start func(location string), stop func(), window time.Duration) *Debouncer {
	if start == nil || stop == nil {
		panic("typing: start and stop callbacks cannot be nil")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{start: start, stop: stop, window: window}
}

// Start 标记正在输入。未处于输入状态时立即发出 start，并总是重新安排 stop 定时器。
func (d *Debouncer) Start(location string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	fire := !d.active
	d.active = true
	d.cancelLocked()
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.window, func() { d.expire(gen) })
	d.mu.Unlock()

	if fire {
		d.start(location)
	}
}

// Stop 取消定时器，若正处于输入状态则立即发出 stop。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.cancelLocked()
	fire := d.active
	d.active = false
	d.mu.Unlock()

	if fire {
		d.stop()
	}
}

// Close 取消挂起的定时器且不发出任何信号，之后的 Start 都被忽略。
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.active = false
	d.closed = true
}

// Active reports whether a start has been emitted without its matching stop.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	// 已被新的 Start、Stop 或 Close 取代
	if gen != d.gen || !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	d.stop()
}

func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
