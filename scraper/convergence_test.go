package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTarget = ScrollTarget{Marker: "m-1"}

func TestDetect_StableOnSecondAttempt(t *testing.T) {
	page := newFakePage(seq(100, 140, 140, 140))
	d := &Detector{
		MaxAttempts:  3,
		ScrollDelay:  40 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		IdleStable:   10 * time.Millisecond,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)

	assert.Equal(t, StateStable, out.State)
	assert.True(t, out.Stable())
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 140, out.FinalMetric)
	assert.Equal(t, 2, page.scrolls)
}

func TestDetect_StabilisesWithinKPlusOneAttempts(t *testing.T) {
	const k = 4
	page := newFakePage(func(i int) int {
		if i < k {
			return 10 * (i + 1)
		}
		return 10 * k
	})
	d := &Detector{
		MaxAttempts:  20,
		ScrollDelay:  10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		IdleStable:   time.Millisecond,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)

	require.Equal(t, StateStable, out.State)
	assert.LessOrEqual(t, out.Attempts, k+1)
	assert.Equal(t, 10*k, out.FinalMetric)
}

func TestDetect_NotStableBeforeIdleWindow(t *testing.T) {
	page := newFakePage(constant(500))
	idle := 120 * time.Millisecond
	d := &Detector{
		MaxAttempts:  50,
		ScrollDelay:  20 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
		IdleStable:   idle,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)

	require.Equal(t, StateStable, out.State)
	assert.GreaterOrEqual(t, out.Elapsed, idle)
	assert.Greater(t, out.Attempts, 1, "the stability clock must span attempts")
}

func TestDetect_ExhaustedAfterMaxAttempts(t *testing.T) {
	page := newFakePage(growing)
	d := &Detector{
		MaxAttempts:  3,
		ScrollDelay:  20 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		IdleStable:   time.Millisecond,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)

	assert.Equal(t, StateExhausted, out.State)
	assert.False(t, out.Stable())
	assert.Equal(t, 3, out.Attempts)
	// One baseline reading plus two polls per attempt.
	assert.Equal(t, 1+3*2, page.readCount())
}

func TestDetect_TimesOutOnNeverStablePage(t *testing.T) {
	page := newFakePage(growing)
	d := &Detector{
		MaxAttempts:  10000,
		ScrollDelay:  10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		IdleStable:   time.Millisecond,
		Timeout:      150 * time.Millisecond,
	}

	start := time.Now()
	out := d.Detect(context.Background(), page, testTarget)

	assert.Equal(t, StateTimedOut, out.State)
	assert.False(t, out.Stable())
	assert.Less(t, time.Since(start), time.Second)
}

func TestDetect_ContextCancelled(t *testing.T) {
	page := newFakePage(growing)
	d := &Detector{
		MaxAttempts:  10000,
		ScrollDelay:  10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Minute,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	out := d.Detect(ctx, page, testTarget)

	assert.Equal(t, StateTimedOut, out.State)
}

func TestDetect_PageClosedMidObservation(t *testing.T) {
	page := newFakePage(growing)
	page.closeAtRead = 3
	d := &Detector{
		MaxAttempts:  10,
		ScrollDelay:  10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		IdleStable:   time.Second,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)
	readsAtDetach := page.readCount()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateDetached, out.State)
	assert.False(t, out.Stable())
	assert.Equal(t, 2, readsAtDetach)
	assert.Equal(t, readsAtDetach, page.readCount(), "no polling after detach")
}

func TestDetect_SkipsTransientMeasurementErrors(t *testing.T) {
	page := newFakePage(seq(100, 120, 120, 120, 120))
	page.readErrs = map[int]error{1: errors.New("Execution context was destroyed")}
	d := &Detector{
		MaxAttempts:  5,
		ScrollDelay:  30 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		IdleStable:   5 * time.Millisecond,
		Timeout:      5 * time.Second,
	}

	out := d.Detect(context.Background(), page, testTarget)

	assert.Equal(t, StateStable, out.State)
	assert.Equal(t, 120, out.FinalMetric)
}

func TestDetect_ShrinkResetsStability(t *testing.T) {
	st := &convergenceState{}
	base := time.Now()
	idle := 10 * time.Millisecond

	assert.False(t, st.observe(50, base, idle))
	assert.False(t, st.observe(50, base.Add(5*time.Millisecond), idle))
	assert.False(t, st.observe(40, base.Add(20*time.Millisecond), idle), "shrink counts as movement")
	assert.True(t, st.stableSince.IsZero())
	assert.False(t, st.observe(40, base.Add(25*time.Millisecond), idle))
	assert.True(t, st.observe(40, base.Add(35*time.Millisecond), idle))
}

func TestDetect_LoadMoreSelectorPassedToScroll(t *testing.T) {
	page := newFakePage(constant(10))
	d := &Detector{
		MaxAttempts:      2,
		ScrollDelay:      10 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
		IdleStable:       time.Millisecond,
		Timeout:          time.Second,
		LoadMoreSelector: "button.more",
	}

	out := d.Detect(context.Background(), page, RootTarget)

	assert.Equal(t, StateStable, out.State)
	assert.Equal(t, []any{"", "button.more"}, page.scrollArgs)
}

func TestPollsPerAttempt(t *testing.T) {
	tests := []struct {
		delay, poll time.Duration
		want        int
	}{
		{2 * time.Second, 500 * time.Millisecond, 4},
		{2100 * time.Millisecond, 500 * time.Millisecond, 5},
		{100 * time.Millisecond, 500 * time.Millisecond, 1},
		{0, 500 * time.Millisecond, 1},
		{time.Second, 0, 1},
	}
	for _, tt := range tests {
		d := &Detector{ScrollDelay: tt.delay, PollInterval: tt.poll}
		assert.Equal(t, tt.want, d.pollsPerAttempt(), "delay=%v poll=%v", tt.delay, tt.poll)
	}
}
