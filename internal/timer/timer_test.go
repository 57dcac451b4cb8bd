package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newFake() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int64]string{
		0:    "00:00",
		5:    "00:05",
		59:   "00:59",
		60:   "01:00",
		125:  "02:05",
		3600: "60:00",
		6001: "100:01",
		-3:   "00:00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), "seconds=%d", in)
	}
}

func TestFormatDurationSecondsAlwaysTwoDigits(t *testing.T) {
	for s := int64(0); s < 10000; s += 7 {
		out := FormatDuration(s)
		colon := len(out) - 3
		assert.Equal(t, byte(':'), out[colon], out)
		assert.Len(t, out[colon+1:], 2, out)
	}
}

func TestElapsedExcludesPauses(t *testing.T) {
	clk := newFake()
	tm := New(clk.now)
	tm.Start()

	clk.advance(30 * time.Second)
	assert.True(t, tm.Pause())
	clk.advance(20 * time.Second)
	assert.Equal(t, int64(30), tm.ElapsedSeconds(), "elapsed frozen while paused")

	assert.True(t, tm.Resume())
	clk.advance(10 * time.Second)
	assert.Equal(t, int64(40), tm.ElapsedSeconds())
	assert.Equal(t, 20*time.Second, tm.TotalPaused())
}

func TestRedundantPauseResumeIsNoop(t *testing.T) {
	clk := newFake()
	tm := New(clk.now)
	tm.Start()
	clk.advance(5 * time.Second)

	assert.True(t, tm.Pause())
	assert.False(t, tm.Pause())
	assert.True(t, tm.Resume())
	assert.False(t, tm.Resume())
	assert.Equal(t, time.Duration(0), tm.TotalPaused())

	before := tm.TotalPaused()
	tm.Pause()
	tm.Resume()
	tm.Pause()
	tm.Resume()
	assert.Equal(t, before, tm.TotalPaused())
}

func TestPauseBeforeStartIsNoop(t *testing.T) {
	tm := New(newFake().now)
	assert.False(t, tm.Pause())
	assert.False(t, tm.Resume())
	assert.Equal(t, time.Duration(0), tm.Elapsed())
}

func TestRestore(t *testing.T) {
	clk := newFake()
	start := clk.t.Add(-2 * time.Minute)
	pausedAt := clk.t.Add(-30 * time.Second)

	tm := Restore(clk.now, start, 15*time.Second, &pausedAt)
	assert.True(t, tm.Paused())
	assert.Equal(t, int64(75), tm.ElapsedSeconds())

	clk.advance(10 * time.Second)
	tm.Resume()
	assert.Equal(t, 55*time.Second, tm.TotalPaused())
	assert.Equal(t, int64(75), tm.ElapsedSeconds())
}

func TestRunStopsOnCancel(t *testing.T) {
	tm := New(nil)
	tm.Start()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		tm.Run(ctx, func(int64) { t.Error("tick after cancel") })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
