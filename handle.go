//go:build linux || darwin

package reactor

// HandleType distinguishes concrete handle kinds for diagnostics; the
// loop's own lifecycle logic never branches on it.
type HandleType int

const (
	HandleTypeUnknown HandleType = iota
	HandleTypeTimer
	HandleTypeIdle
	HandleTypePrepare
	HandleTypeCheck
	HandleTypeAsync
)

// handleFlags are the per-Handle lifecycle bits (§4.4).
type handleFlags uint8

const (
	flagActive handleFlags = 1 << iota
	flagRef
	flagClosing
	flagClosed
)

// CloseCallback runs once a Handle has fully transitioned to CLOSED,
// after any in-flight callback for it has returned (§4.4 two-phase
// close).
type CloseCallback func(h *Handle)

// Handle is the lifecycle shared by every concrete handle the loop
// drives: timers, idle/prepare/check watchers, and the async handle.
// It is always embedded, never used standalone.
type Handle struct {
	typ   HandleType
	loop  *Loop
	flags handleFlags

	closeCB CloseCallback

	closingNext, closingPrev *Handle
	onClosingQueue           bool
}

func initHandle(h *Handle, loop *Loop, typ HandleType) {
	*h = Handle{typ: typ, loop: loop, flags: flagRef}
}

func (h *Handle) isActive() bool  { return h.flags&flagActive != 0 }
func (h *Handle) isClosing() bool { return h.flags&flagClosing != 0 }
func (h *Handle) isClosed() bool  { return h.flags&flagClosed != 0 }
func (h *Handle) hasRef() bool    { return h.flags&flagRef != 0 }

// ref/unref control whether this handle keeps the loop alive (§4.4,
// §6 Alive).
func (h *Handle) ref() {
	if h.flags&flagRef != 0 {
		return
	}
	h.flags |= flagRef
	if h.flags&flagActive != 0 {
		h.loop.activeHandles++
	}
}

func (h *Handle) unref() {
	if h.flags&flagRef == 0 {
		return
	}
	h.flags &^= flagRef
	if h.flags&flagActive != 0 {
		h.loop.activeHandles--
	}
}

func (h *Handle) startActive() {
	if h.flags&flagActive != 0 {
		return
	}
	h.flags |= flagActive
	if h.flags&flagRef != 0 {
		h.loop.activeHandles++
	}
}

func (h *Handle) stopActive() {
	if h.flags&flagActive == 0 {
		return
	}
	h.flags &^= flagActive
	if h.flags&flagRef != 0 {
		h.loop.activeHandles--
	}
}

// close begins the two-phase close (§4.4): mark CLOSING immediately so
// no further operation can be started on the handle, then queue it for
// finalization on the next close phase via makeClosePending.
func (h *Handle) close(cb CloseCallback) {
	if h.isClosing() || h.isClosed() {
		return
	}
	h.closeCB = cb
	h.flags |= flagClosing
	h.stopActive()
	h.loop.makeClosePending(h)
}

// makeClosePending queues h onto the loop's closing_handles list; it
// runs during the close phase of run(), never inline, so a handle can
// safely close itself or a sibling from within a callback (§8 "self
// close in callback").
func (l *Loop) makeClosePending(h *Handle) {
	if h.onClosingQueue {
		return
	}
	h.closingNext = l.closingHandles
	h.closingPrev = nil
	if l.closingHandles != nil {
		l.closingHandles.closingPrev = h
	}
	l.closingHandles = h
	h.onClosingQueue = true
}

// runClosingHandles finalizes every handle queued since the last close
// phase: unreferences it, marks CLOSED, and invokes its close
// callback, if any (invariant: CLOSED implies not referenced by the
// loop). Handles queued for close *during* this pass (by a close
// callback) are picked up on the next run() iteration, matching the
// libuv semantics of never finalizing a handle within its own close
// callback's dynamic extent more than once.
func (l *Loop) runClosingHandles() {
	h := l.closingHandles
	l.closingHandles = nil
	for h != nil {
		next := h.closingNext
		h.onClosingQueue = false
		h.closingNext, h.closingPrev = nil, nil

		// stopActive (called from close, above) already removed this
		// handle's contribution to activeHandles if it was counted;
		// clearing REF here is bookkeeping only, not a second
		// decrement.
		h.flags &^= flagRef
		h.flags |= flagClosed
		h.flags &^= flagClosing

		if h.closeCB != nil {
			h.closeCB(h)
		}
		h = next
	}
}
