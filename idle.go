//go:build linux || darwin

package reactor

// IdleHandle runs its callback once per loop iteration while it is
// active, whether or not other work is ready (libuv's "idle runs if
// active, always" behavior used for GC-style hooks). While any idle
// handle is started, BackendTimeout is 0, so io_poll does not block.
type IdleHandle struct {
	Handle
	cb func(h *IdleHandle)

	next, prev *Handle
}

// NewIdle allocates an IdleHandle bound to loop, not yet started.
func NewIdle(loop *Loop) *IdleHandle {
	h := &IdleHandle{}
	initHandle(&h.Handle, loop, HandleTypeIdle)
	return h
}

// Start arms the idle handle.
func (h *IdleHandle) Start(cb func(h *IdleHandle)) {
	if h.isClosing() {
		return
	}
	h.cb = cb
	if !h.isActive() {
		h.loop.idleHandles = append(h.loop.idleHandles, h)
	}
	h.startActive()
}

// Stop disarms the idle handle.
func (h *IdleHandle) Stop() {
	if !h.isActive() {
		return
	}
	h.stopActive()
	h.loop.removeIdle(h)
}

// Close begins the two-phase close for this handle.
func (h *IdleHandle) Close(cb CloseCallback) {
	h.Stop()
	h.close(cb)
}

func (l *Loop) removeIdle(h *IdleHandle) {
	for i, c := range l.idleHandles {
		if c == h {
			l.idleHandles = append(l.idleHandles[:i], l.idleHandles[i+1:]...)
			return
		}
	}
}

// runIdle invokes every active idle handle once. Handles started or
// stopped by a callback during this pass take effect on the next
// iteration, since it iterates a snapshot of the slice taken at entry.
func (l *Loop) runIdle() {
	if len(l.idleHandles) == 0 {
		return
	}
	snapshot := make([]*IdleHandle, len(l.idleHandles))
	copy(snapshot, l.idleHandles)
	for _, h := range snapshot {
		if h.isActive() && h.cb != nil {
			h.cb(h)
		}
	}
}
