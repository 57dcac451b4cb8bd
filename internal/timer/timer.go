// Package timer tracks wall-clock time of a training session with pause support.
package timer

import (
	"context"
	"sync"
	"time"
)

// TickInterval is the cadence of Run.
const TickInterval = time.Second

// Clock lets tests control time.
type Clock func() time.Time

// Timer computes elapsed = now - start - totalPaused. It is safe for concurrent use.
type Timer struct {
	mu          sync.Mutex
	now         Clock
	start       time.Time
	started     bool
	pausedAt    time.Time
	paused      bool
	totalPaused time.Duration
}

func New(now Clock) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now}
}

// Restore rebuilds a timer from persisted session state. pausedAt may be nil.
func Restore(now Clock, start time.Time, totalPaused time.Duration, pausedAt *time.Time) *Timer {
	t := New(now)
	t.start = start
	t.started = true
	t.totalPaused = totalPaused
	if pausedAt != nil {
		t.paused = true
		t.pausedAt = *pausedAt
	}
	return t
}

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = t.now()
	t.started = true
	t.paused = false
	t.totalPaused = 0
}

// Pause reports whether the call changed state; pausing a paused timer is a no-op.
func (t *Timer) Pause() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.paused {
		return false
	}
	t.paused = true
	t.pausedAt = t.now()
	return true
}

// Resume reports whether the call changed state; resuming a running timer is a no-op.
func (t *Timer) Resume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || !t.paused {
		return false
	}
	if d := t.now().Sub(t.pausedAt); d > 0 {
		t.totalPaused += d
	}
	t.paused = false
	t.pausedAt = time.Time{}
	return true
}

func (t *Timer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *Timer) TotalPaused() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalPaused
}

func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return 0
	}
	now := t.now()
	if t.paused {
		now = t.pausedAt
	}
	d := now.Sub(t.start) - t.totalPaused
	if d < 0 {
		return 0
	}
	return d
}

func (t *Timer) ElapsedSeconds() int64 {
	return int64(t.Elapsed() / time.Second)
}

// Run calls fn with the elapsed seconds on every tick until ctx is done.
// Ticks while paused are skipped.
func (t *Timer) Run(ctx context.Context, fn func(elapsedSeconds int64)) {
	tk := time.NewTicker(TickInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if t.Paused() {
				continue
			}
			fn(t.ElapsedSeconds())
		}
	}
}
