// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin

package reactor

import (
	"os"
	"syscall"

	"github.com/joeycumines/logiface"
)

// RunMode selects how long Run blocks before returning, mirroring the
// three granularities libuv exposes for uv_run.
type RunMode int

const (
	// RunDefault runs until there are no more active handles or
	// requests keeping the loop alive.
	RunDefault RunMode = iota
	// RunOnce polls for I/O at least once, blocking if nothing is
	// immediately ready, then returns after one full iteration.
	RunOnce
	// RunNoWait polls for I/O once without blocking, then returns.
	RunNoWait
)

// Loop is the single-threaded event loop core: a phase-ordered driver
// (run), an fd-indexed I/O watcher table backed by a kernel poller,
// and the handle lifecycle shared by every concrete handle above it.
// A Loop is not safe for concurrent use except via AsyncHandle.Send.
type Loop struct {
	time  int64
	clock Clock

	poller       kernelPoller
	table        watcherTable
	watcherQueue watcherQueueList
	pendingQueue pendingQueueList
	signalMask   []int
	rePollBudget int
	maxEvents    int

	timers   timerHeap
	timerSeq uint64

	idleHandles    []*IdleHandle
	prepareHandles []*PrepareHandle
	checkHandles   []*CheckHandle
	closingHandles *Handle

	requests *requestRegistry

	activeHandles int
	stopRequested bool

	state  *FastState
	logger *logiface.Logger[logiface.Event]
}

// New constructs a Loop and initializes its kernel poller (loop_init,
// §4.4 / §6).
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		clock:        cfg.clock,
		rePollBudget: cfg.rePollBudget,
		maxEvents:    cfg.maxEvents,
		logger:       cfg.logger,
		requests:     newRequestRegistry(),
		state:        NewFastState(),
		signalMask:   signalsToInts(cfg.signalMask),
	}
	l.table.sentinelEvents = make([]pollEvent, 0, l.maxEvents)

	l.poller = newKernelPoller()
	if err := l.poller.init(); err != nil {
		return nil, err
	}
	l.updateTime()

	l.logInfo("loop initialized", "backend_fd", l.poller.fd())
	return l, nil
}

// signalsToInts extracts the underlying signal numbers; on unix
// platforms os.Signal values are always syscall.Signal.
func signalsToInts(signals []os.Signal) []int {
	out := make([]int, 0, len(signals))
	for _, s := range signals {
		if sig, ok := s.(syscall.Signal); ok {
			out = append(out, int(sig))
		}
	}
	return out
}

// BackendFD exposes the kernel poller's own fd, for embedding this
// loop inside another fd-based event system (§6).
func (l *Loop) BackendFD() int {
	return l.poller.fd()
}

// BackendTimeout returns the timeout, in milliseconds, the loop would
// currently pass to its next io_poll: 0 if a stop is requested, if no
// handle or request is active, or if pending, idle or closing work
// exists; otherwise -1 if no timer is armed, else how long until the
// earliest timer fires (§6).
func (l *Loop) BackendTimeout() int {
	if l.stopRequested {
		return 0
	}
	if l.activeHandles == 0 && l.requests.ActiveCount() == 0 {
		return 0
	}
	if !l.pendingQueue.empty() || len(l.idleHandles) > 0 || l.closingHandles != nil {
		return 0
	}
	return l.nextTimeout()
}

// Alive reports whether the loop has any active handle, active
// request, or handle awaiting close finalization still keeping it
// alive (§4.4 liveness).
func (l *Loop) Alive() bool {
	return l.activeHandles > 0 || l.closingHandles != nil || l.requests.ActiveCount() > 0
}

// Stop requests that the running loop return after completing its
// current iteration (§4.1, §8 "stop during poll").
func (l *Loop) Stop() {
	l.stopRequested = true
}

// Run drives the loop through its phase-ordered iterations until
// stopped, until no handles remain active (RunDefault), or for exactly
// one iteration (RunOnce/RunNoWait) (§4.1, the loop driver's 11-step
// run()).
func (l *Loop) Run(mode RunMode) error {
	if !l.state.TryTransition(StateInitial, StateRunning) {
		if !l.state.TryTransition(StateStopping, StateRunning) {
			return ErrLoopClosed
		}
	}

	for {
		// 1. refresh loop time.
		l.updateTime()

		if !l.Alive() {
			break
		}

		// 2. run due timers.
		l.runTimers()

		// 3. run pending watcher callbacks queued via io_feed.
		l.runPending()

		// 4. run idle handles.
		l.runIdle()

		// 5. run prepare handles.
		l.runPrepare()

		// 6. compute the poll timeout and block for readiness.
		timeout := 0
		if mode != RunNoWait {
			timeout = l.BackendTimeout()
		}
		l.ioPoll(timeout)

		// 7. run check handles.
		l.runCheck()

		// 8. finalize any handle closed during this iteration.
		l.runClosingHandles()

		// 9. in ONCE mode only, refresh loop time and re-fire timers,
		// guaranteeing forward progress when the poll returned purely
		// because its timeout expired.
		if mode == RunOnce {
			l.updateTime()
			l.runTimers()
		}

		l.requests.Scavenge(64)

		// 10. decide whether to continue.
		if l.stopRequested {
			l.stopRequested = false
			break
		}
		if mode != RunDefault {
			break
		}
	}

	if !l.Alive() {
		l.state.Store(StateStopping)
	} else {
		l.state.TryTransition(StateRunning, StateStopping)
	}
	return nil
}

// runPending dispatches every watcher queued via io_feed without
// consulting the kernel (invariant 5).
func (l *Loop) runPending() {
	w := l.pendingQueue.detach()
	for w != nil {
		next := w.pqNext
		w.onPendingQueue = false
		w.pqNext, w.pqPrev = nil, nil
		if w.cb != nil {
			w.cb(l, w, 0)
		}
		w = next
	}
}

// Close releases the loop's kernel poller and cancels every
// outstanding request, so nothing is left waiting on a loop that will
// never run again (loop_close, §4.4).
func (l *Loop) Close() error {
	if !l.state.TryTransition(StateStopping, StateClosed) {
		if !l.state.TryTransition(StateInitial, StateClosed) {
			return nil
		}
	}
	l.requests.CancelAll(ErrLoopClosed)
	l.logInfo("loop closed")
	return l.poller.close()
}

// Fork re-initializes the loop's kernel poller after the process has
// forked, since epoll/kqueue fds and their registrations do not carry
// across fork (§9). Watchers already registered are re-queued so the
// next io_poll reconciles them against the fresh backend fd.
func (l *Loop) Fork() error {
	if err := l.poller.close(); err != nil {
		l.logWarn("fork: close old backend_fd failed", "err", err.Error())
	}
	l.poller = newKernelPoller()
	if err := l.poller.init(); err != nil {
		return err
	}
	for fd := 0; fd < len(l.table.watchers); fd++ {
		if w := l.table.watchers[fd]; w != nil {
			w.events = 0
			if !w.onWatcherQueue {
				l.watcherQueue.pushBack(w)
			}
		}
	}
	return nil
}
