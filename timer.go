//go:build linux || darwin

package reactor

import (
	"container/heap"
)

// TimerHandle fires its callback once loop time reaches a deadline,
// optionally repeating every `repeat` milliseconds thereafter. The
// timer heap itself (timerHeap below) is an internal collaborator of
// Loop; only next_timeout/run_timers are part of the loop's public
// contract.
type TimerHandle struct {
	Handle

	cb      func(t *TimerHandle)
	due     int64 // absolute loop-time deadline, ms
	repeat  int64 // ms; 0 = one-shot
	index   int   // heap index, maintained by container/heap callbacks
	onHeap  bool
	startID uint64 // tie-breaker for stable ordering among equal deadlines
}

// NewTimer allocates a TimerHandle bound to loop, not yet started.
func NewTimer(loop *Loop) *TimerHandle {
	t := &TimerHandle{}
	initHandle(&t.Handle, loop, HandleTypeTimer)
	return t
}

// Start arms the timer to fire timeoutMs from now, and every repeatMs
// thereafter if repeatMs > 0.
func (t *TimerHandle) Start(cb func(t *TimerHandle), timeoutMs, repeatMs int64) {
	if t.isClosing() {
		return
	}
	l := t.loop
	if t.onHeap {
		heap.Remove(&l.timers, t.index)
		t.onHeap = false
	}
	t.cb = cb
	t.repeat = repeatMs
	t.due = l.time + timeoutMs
	l.timerSeq++
	t.startID = l.timerSeq
	heap.Push(&l.timers, t)
	t.onHeap = true
	t.startActive()
}

// Stop disarms the timer; it is safe to call on an already-stopped
// timer.
func (t *TimerHandle) Stop() {
	if t.onHeap {
		heap.Remove(&t.loop.timers, t.index)
		t.onHeap = false
	}
	t.stopActive()
}

// Again re-arms a repeating timer using its last repeat interval,
// restarting from now.
func (t *TimerHandle) Again() {
	if t.repeat == 0 {
		return
	}
	t.Start(t.cb, t.repeat, t.repeat)
}

// Close begins the two-phase close for this timer (§4.4).
func (t *TimerHandle) Close(cb CloseCallback) {
	t.Stop()
	t.close(cb)
}

// timerHeap is a container/heap min-heap over TimerHandle.due, broken
// by startID to keep insertion order stable among equal deadlines —
// the loop-facing surface is exactly nextTimeout/runTimers; the data
// structure used to get there is not part of the contract.
type timerHeap []*TimerHandle

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].startID < h[j].startID
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*TimerHandle)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// nextTimeout returns the number of milliseconds until the earliest
// armed timer fires, -1 if infinite (no timers), or 0 if one is
// already due (§6).
func (l *Loop) nextTimeout() int {
	if len(l.timers) == 0 {
		return -1
	}
	due := l.timers[0].due
	if due <= l.time {
		return 0
	}
	diff := due - l.time
	if diff > maxEpollTimeout {
		return maxEpollTimeout
	}
	return int(diff)
}

// runTimers fires every timer whose deadline has passed, rearming
// repeaters before invoking their callback so a callback that calls
// Stop/Close on itself observes a consistent state (§4.1 step 2).
func (l *Loop) runTimers() {
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.due > l.time {
			return
		}
		heap.Pop(&l.timers)
		t.onHeap = false

		if t.repeat > 0 {
			t.due = l.time + t.repeat
			l.timerSeq++
			t.startID = l.timerSeq
			heap.Push(&l.timers, t)
			t.onHeap = true
		} else {
			t.stopActive()
		}

		if t.cb != nil {
			t.cb(t)
		}
	}
}
