//go:build linux || darwin

package reactor

import (
	"errors"
)

// ioPoll is the reactor's central algorithm (§4.3): reconcile pending
// interest changes with the kernel, block for readiness up to timeout
// milliseconds (-1 = forever, 0 = don't block), and dispatch every
// watcher whose callback is due to run, with the loop's signal watcher
// always dispatched last within a batch.
func (l *Loop) ioPoll(timeoutMs int) {
	if l.table.nfds == 0 {
		// No fd interest at all: return immediately regardless of the
		// requested timeout. watcher_queue is necessarily empty too,
		// since anything queued there would have a pevents that put
		// it in the table.
		return
	}

	l.reconcileWatcherQueue()

	baseTime := l.time
	rePollBudget := l.rePollBudget
	var signals []int
	if len(l.signalMask) > 0 {
		signals = l.signalMask
	}

	realTimeout := timeoutMs

	for {
		capped := realTimeout
		if capped > maxEpollTimeout {
			capped = maxEpollTimeout
		}

		buf := l.table.sentinelEvents[:0]
		events, err := l.poller.wait(capped, signals, buf)

		// The wait may have blocked for a while; loop time is only
		// ever refreshed at well-defined points (§6), and returning
		// from a poll is one of them.
		l.updateTime()

		if err != nil {
			if errors.Is(err, errInterrupted) {
				if realTimeout == -1 {
					continue
				}
				elapsed := int(l.time - baseTime)
				realTimeout = timeoutMs - elapsed
				if realTimeout <= 0 {
					return
				}
				continue
			}
			fatalf(l, "io_poll: %v", err)
			return
		}

		if len(events) == 0 {
			if realTimeout == 0 {
				return
			}
			if capped < realTimeout && realTimeout != -1 {
				// We only hit the platform cap, not the caller's
				// timeout; keep waiting for the remainder.
				elapsed := int(l.time - baseTime)
				realTimeout = timeoutMs - elapsed
				if realTimeout <= 0 {
					return
				}
				continue
			}
			return
		}

		// Publish the batch into the sentinel slots so a callback
		// that closes a not-yet-dispatched fd can invalidate its
		// entry in place via platformInvalidateFD, rather than the
		// dispatch loop reading stale data for a reused fd (§9).
		l.table.sentinelEvents = events
		l.dispatchBatch()
		l.table.sentinelEvents = l.table.sentinelEvents[:0]

		if len(events) < l.maxEvents || rePollBudget <= 0 {
			return
		}
		// The batch saturated the buffer: more events are likely
		// still pending. Re-poll with a zero timeout to drain them
		// before yielding back to the next loop phase (§4.3, §9).
		rePollBudget--
		realTimeout = 0
	}
}

// dispatchBatch walks the currently published sentinel slots
// (l.table.sentinelEvents) and invokes each ready watcher's callback,
// masking in EventHangup/EventError unconditionally and deferring the
// loop's signal watcher, if any, to run last (§4.3 step (e), §9). An
// event whose fd has no watcher in the table gets a best-effort DEL
// from the kernel poller. When only EventHangup/EventError fired, the
// watcher's read/write/priority interests are added to the delivered
// bits so its callback drains the fd and observes the condition. A
// callback may invalidate a not-yet-visited entry in place — via
// ioClose/platformInvalidateFD setting its fd to -1 — to prevent a
// stale event from reaching whatever watcher now owns a reused fd
// number.
func (l *Loop) dispatchBatch() {
	var signalWatcher *Watcher
	var signalREvents IOEvents

	for i := 0; i < len(l.table.sentinelEvents); i++ {
		ev := l.table.sentinelEvents[i]
		if ev.fd == -1 {
			continue // invalidated mid-batch
		}
		w := l.table.get(ev.fd)
		if w == nil {
			// Stopped or closed mid-batch; errors ignored (§7).
			_ = l.poller.del(ev.fd)
			continue
		}
		revents := ev.revents & (w.pevents | EventHangup | EventError)
		if revents != 0 && revents&^(EventHangup|EventError) == 0 {
			revents |= w.pevents & (EventReadable | EventWritable | EventPriority)
		}
		if revents == 0 {
			continue
		}
		if w.isSignal {
			signalWatcher = w
			signalREvents |= revents
			continue
		}
		w.cb(l, w, revents)
	}

	if signalWatcher != nil {
		signalWatcher.cb(l, signalWatcher, signalREvents)
	}
}

// reconcileWatcherQueue pushes every queued interest change to the
// kernel poller. An ADD that fails because the fd is already
// registered retries as a MOD; any other failure is unrecoverable
// (§7: watcher-table/reconciliation errors are fatal).
func (l *Loop) reconcileWatcherQueue() {
	w := l.watcherQueue.detach()
	for w != nil {
		next := w.wqNext
		w.onWatcherQueue = false
		w.wqNext, w.wqPrev = nil, nil

		if w.pevents == 0 {
			w.events = 0
			w = next
			continue
		}

		var err error
		if w.events == 0 {
			err = l.poller.add(w.fd, w.pevents)
			if err != nil && isAlreadyExists(err) {
				err = l.poller.modify(w.fd, w.pevents)
			}
		} else {
			err = l.poller.modify(w.fd, w.pevents)
		}
		if err != nil {
			fatalf(l, "io_poll: reconcile fd %d: %v", w.fd, err)
			return
		}
		w.events = w.pevents
		w = next
	}
}

// updateTime refreshes the loop's coarse millisecond clock (§6).
func (l *Loop) updateTime() {
	l.time = nowMillis(l.clock)
}

var errInterrupted = ErrInterrupted
