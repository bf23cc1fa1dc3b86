//go:build linux || darwin

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

// TestBasicReadiness covers the first §8 scenario: a watcher on a
// readable fd fires exactly once in the io_poll pass it's ready in.
func TestBasicReadiness(t *testing.T) {
	l := newTestLoop(t)

	read, write, err := createWakeFD()
	require.NoError(t, err)
	defer closeFD(write)

	fired := 0
	var w Watcher
	ioInit(&w, read, func(loop *Loop, w *Watcher, revents IOEvents) {
		fired++
		drainWakeFD(read)
		loop.ioStop(w, EventReadable)
	})
	l.ioStart(&w, EventReadable)

	require.NoError(t, signalWakeFD(write))

	l.ioPoll(1000)
	require.Equal(t, 1, fired)
}

// TestSelfCancelInCallback covers the second §8 scenario: a watcher
// callback that stops (and closes) itself must not be re-dispatched
// within the same or a later batch.
func TestSelfCancelInCallback(t *testing.T) {
	l := newTestLoop(t)

	read, write, err := createWakeFD()
	require.NoError(t, err)
	defer closeFD(write)

	fired := 0
	var w Watcher
	ioInit(&w, read, func(loop *Loop, w *Watcher, revents IOEvents) {
		fired++
		loop.ioClose(w)
	})
	l.ioStart(&w, EventReadable)

	require.NoError(t, signalWakeFD(write))
	l.ioPoll(1000)
	require.Equal(t, 1, fired)

	// fd is still readable (never drained); a watcher that wasn't
	// closed would fire again. Confirm it does not.
	l.ioPoll(0)
	require.Equal(t, 1, fired)
}

// TestCoalescedReconfiguration covers the third §8 scenario: starting
// and stopping interest in the same fd multiple times before the next
// io_poll collapses into a single reconciliation.
func TestCoalescedReconfiguration(t *testing.T) {
	l := newTestLoop(t)

	read, write, err := createWakeFD()
	require.NoError(t, err)
	defer closeFD(write)

	var w Watcher
	ioInit(&w, read, func(loop *Loop, w *Watcher, revents IOEvents) {})

	l.ioStart(&w, EventReadable)
	l.ioStop(&w, EventReadable)
	l.ioStart(&w, EventReadable)

	require.Equal(t, 1, countWatcherQueue(&l.watcherQueue))

	l.reconcileWatcherQueue()
	require.Equal(t, EventReadable, w.events)
	require.True(t, l.watcherQueue.empty())
}

func countWatcherQueue(q *watcherQueueList) int {
	n := 0
	for w := q.head; w != nil; w = w.wqNext {
		n++
	}
	return n
}

// TestFDReuseInvalidation covers the fourth §8 scenario: within a
// single dispatch batch, a callback that closes the fd behind a
// not-yet-visited entry and immediately re-registers a new watcher on
// that same fd number must not have the stale entry delivered to the
// new watcher.
func TestFDReuseInvalidation(t *testing.T) {
	l := newTestLoop(t)

	const fdA, fdB = 11, 12

	var wA, wB, wC Watcher
	bFired, cFired := false, false

	ioInit(&wA, fdA, func(loop *Loop, w *Watcher, revents IOEvents) {
		// Close B before its own entry (index 1) is visited, and
		// immediately reuse its fd number for a brand new watcher —
		// exactly as the OS might hand fd 12 straight back out.
		loop.ioClose(&wB)
		ioInit(&wC, fdB, func(loop *Loop, w *Watcher, revents IOEvents) {
			cFired = true
		})
		wC.pevents = EventReadable
		loop.table.set(fdB, &wC)
	})
	ioInit(&wB, fdB, func(loop *Loop, w *Watcher, revents IOEvents) {
		bFired = true
	})
	l.table.maybeResize(fdB + 1)
	l.table.set(fdA, &wA)
	l.table.set(fdB, &wB)
	l.table.nfds = 2
	wA.pevents, wB.pevents = EventReadable, EventReadable

	l.table.sentinelEvents = []pollEvent{
		{fd: fdA, revents: EventReadable},
		{fd: fdB, revents: EventReadable},
	}
	l.dispatchBatch()

	require.False(t, bFired, "B's own stale entry must not fire once B is closed mid-batch")
	require.False(t, cFired, "C must not receive B's stale entry just because it reused B's fd")
}

// TestTimerOnlyForwardProgress covers the fifth §8 scenario: a loop
// with only a timer active (no I/O watchers) still makes forward
// progress and returns once the timer has fired and nothing remains
// active.
func TestTimerOnlyForwardProgress(t *testing.T) {
	l := newTestLoop(t)

	fired := false
	timer := NewTimer(l)
	timer.Start(func(t *TimerHandle) {
		fired = true
		t.Close(nil)
	}, 1, 0)

	require.NoError(t, l.Run(RunDefault))
	require.True(t, fired)
	require.False(t, l.Alive())
}

// TestStopDuringPoll covers the sixth §8 scenario: Stop called from a
// timer callback takes effect after the current iteration, not mid
// poll.
func TestStopDuringPoll(t *testing.T) {
	l := newTestLoop(t)

	timer := NewTimer(l)
	count := 0
	timer.Start(func(t *TimerHandle) {
		count++
		l.Stop()
		t.Again()
	}, 1, 1)

	require.NoError(t, l.Run(RunDefault))
	require.Equal(t, 1, count)

	timer.Close(nil)
}

// TestBackendTimeoutNoHandles ensures BackendTimeout is 0 once nothing
// is active, so a caller embedding this loop's backend fd in another
// reactor never blocks indefinitely on a dead loop.
func TestBackendTimeoutNoHandles(t *testing.T) {
	l := newTestLoop(t)
	require.Equal(t, 0, l.BackendTimeout())
	require.False(t, l.Alive())
}

// TestBackendTimeoutWithTimer ensures BackendTimeout reflects the
// earliest armed timer.
func TestBackendTimeoutWithTimer(t *testing.T) {
	l := newTestLoop(t)
	timer := NewTimer(l)
	timer.Start(func(t *TimerHandle) {}, 10_000, 0)
	defer timer.Close(nil)

	to := l.BackendTimeout()
	require.Greater(t, to, 0)
	require.LessOrEqual(t, to, 10_000)
}

// TestBackendTimeoutForcedToZeroByClosingHandle covers §4.1 step 6's
// "or ... closing work exists" clause: a long-lived active handle with
// nothing due should not be allowed to push BackendTimeout out to -1
// while a sibling handle is sitting on closing_handles awaiting
// finalization.
func TestBackendTimeoutForcedToZeroByClosingHandle(t *testing.T) {
	l := newTestLoop(t)
	longLived := NewCheck(l)
	longLived.Start(func(*CheckHandle) {})
	defer longLived.Close(nil)

	other := NewCheck(l)
	other.Start(func(*CheckHandle) {})
	other.close(nil) // queues on closingHandles without finalizing yet

	require.Equal(t, 0, l.BackendTimeout())
}

// TestCloseCallbackRunsWhenClosingHandleWasTheOnlyLiveHandle covers
// §8's "cb invoked exactly once" round trip for the case where the
// handle being closed was the loop's only active handle: Stop() inside
// Close() drops activeHandles to zero before the handle reaches
// closing_handles, so Run's liveness check must still see the loop as
// alive until runClosingHandles finalizes it.
func TestCloseCallbackRunsWhenClosingHandleWasTheOnlyLiveHandle(t *testing.T) {
	l := newTestLoop(t)
	c := NewCheck(l)
	c.Start(func(*CheckHandle) {})

	var closed bool
	c.Close(func(*Handle) { closed = true })

	require.NoError(t, l.Run(RunDefault))
	require.True(t, closed, "close callback must run even though activeHandles hit zero before the closing pass")
}

func TestRunRejectsClosedLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Run(RunNoWait), ErrLoopClosed)
}

func TestForkReinitializesPoller(t *testing.T) {
	l := newTestLoop(t)
	require.GreaterOrEqual(t, l.BackendFD(), 0)
	require.NoError(t, l.Fork())
	// The old backend_fd is invalid post-fork regardless of whether
	// the kernel happens to hand back the same integer; what matters
	// is that init succeeded and produced a usable fd.
	require.GreaterOrEqual(t, l.BackendFD(), 0)
}

func TestAsyncHandleWakesLoop(t *testing.T) {
	l := newTestLoop(t)
	a, err := NewAsync(l)
	require.NoError(t, err)
	defer a.Close(nil)

	ran := make(chan struct{})
	a.Send(func() { close(ran) })

	done := make(chan error, 1)
	go func() { done <- l.Run(RunDefault) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("async callback never ran")
	}

	// Stop must be requested from the loop's own goroutine; route it
	// through the async handle rather than calling it directly here.
	a.Send(func() { l.Stop() })
	require.NoError(t, <-done)
}

// TestAsyncHandleSendRegistersActiveRequest checks that an undrained
// Send keeps the loop alive via active_reqs even when every handle is
// unreferenced, and that the request settles once the batch is drained.
func TestAsyncHandleSendRegistersActiveRequest(t *testing.T) {
	l := newTestLoop(t)
	a, err := NewAsync(l)
	require.NoError(t, err)
	defer a.Close(nil)
	a.unref()

	require.Equal(t, 0, l.requests.ActiveCount())
	a.Send(func() {})
	require.Equal(t, 1, l.requests.ActiveCount(), "an outstanding undrained batch must count as an active request")
	require.True(t, l.Alive(), "active_reqs alone must keep the loop alive")

	l.ioPoll(1000)
	require.Equal(t, 0, l.requests.ActiveCount(), "draining the batch must settle its request")
}
