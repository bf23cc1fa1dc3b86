//go:build linux || darwin

package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimerHeapOrdersByDueThenInsertionOrder(t *testing.T) {
	l := newTestLoop(t)

	var order []int
	mk := func(id int) *TimerHandle {
		timer := NewTimer(l)
		timer.Start(func(*TimerHandle) { order = append(order, id) }, 0, 0)
		return timer
	}

	a := mk(1)
	b := mk(2)
	c := mk(3)
	defer a.Close(nil)
	defer b.Close(nil)
	defer c.Close(nil)

	l.runTimers()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestTimerNextTimeoutNoTimers(t *testing.T) {
	l := newTestLoop(t)
	require.Equal(t, -1, l.nextTimeout())
}

func TestTimerNextTimeoutDueNow(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)
	timer.Start(func(*TimerHandle) {}, 0, 0)
	require.Equal(t, 0, l.nextTimeout())
}

func TestTimerNextTimeoutFuture(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)
	timer.Start(func(*TimerHandle) {}, 5000, 0)
	to := l.nextTimeout()
	require.Greater(t, to, 0)
	require.LessOrEqual(t, to, 5000)
}

func TestTimerNextTimeoutCapsAtMaxEpollTimeout(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)
	timer.Start(func(*TimerHandle) {}, maxEpollTimeout*2, 0)
	require.Equal(t, maxEpollTimeout, l.nextTimeout())
}

func TestTimerRestartCancelsPreviousArming(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)

	fired := 0
	timer.Start(func(*TimerHandle) { fired++ }, 0, 0)
	timer.Start(func(*TimerHandle) { fired++ }, 10_000, 0)

	l.runTimers()
	require.Equal(t, 0, fired, "timer rearmed far in the future must not fire")
	require.Len(t, l.timers, 1)
}

func TestTimerRepeatRearmsBeforeCallback(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)

	var sawOnHeap bool
	timer.Start(func(t *TimerHandle) { sawOnHeap = t.onHeap }, 0, 10)
	l.runTimers()
	require.True(t, sawOnHeap, "repeating timer must be rearmed before its callback runs")
	require.Len(t, l.timers, 1)
}

func TestTimerOneShotStopsActiveAfterFiring(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)

	timer.Start(func(*TimerHandle) {}, 0, 0)
	require.True(t, timer.isActive())
	l.runTimers()
	require.False(t, timer.isActive())
	require.Empty(t, l.timers)
}

func TestTimerAgainRestartsFromNow(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)

	fired := 0
	timer.Start(func(*TimerHandle) { fired++ }, 0, 50)
	l.runTimers()
	require.Equal(t, 1, fired)

	timer.Stop()
	require.False(t, timer.onHeap)
	timer.Again()
	require.True(t, timer.onHeap)
	require.Equal(t, l.time+50, timer.due)
}

func TestTimerAgainNoopWithoutRepeat(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	defer timer.Close(nil)

	timer.Start(func(*TimerHandle) {}, 0, 0)
	l.runTimers()
	timer.Again()
	require.False(t, timer.onHeap, "Again must be a no-op for a non-repeating timer")
}

func TestTimerStartOnClosingHandleIsNoop(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	timer.close(nil)
	timer.Start(func(*TimerHandle) {}, 0, 0)
	require.False(t, timer.onHeap)
}
