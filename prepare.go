//go:build linux || darwin

package reactor

// PrepareHandle runs its callback once per loop iteration immediately
// before the loop blocks in io_poll (§4.1 step 7).
type PrepareHandle struct {
	Handle
	cb func(h *PrepareHandle)
}

// NewPrepare allocates a PrepareHandle bound to loop, not yet started.
func NewPrepare(loop *Loop) *PrepareHandle {
	h := &PrepareHandle{}
	initHandle(&h.Handle, loop, HandleTypePrepare)
	return h
}

func (h *PrepareHandle) Start(cb func(h *PrepareHandle)) {
	if h.isClosing() {
		return
	}
	h.cb = cb
	if !h.isActive() {
		h.loop.prepareHandles = append(h.loop.prepareHandles, h)
	}
	h.startActive()
}

func (h *PrepareHandle) Stop() {
	if !h.isActive() {
		return
	}
	h.stopActive()
	h.loop.removePrepare(h)
}

func (h *PrepareHandle) Close(cb CloseCallback) {
	h.Stop()
	h.close(cb)
}

func (l *Loop) removePrepare(h *PrepareHandle) {
	for i, c := range l.prepareHandles {
		if c == h {
			l.prepareHandles = append(l.prepareHandles[:i], l.prepareHandles[i+1:]...)
			return
		}
	}
}

func (l *Loop) runPrepare() {
	if len(l.prepareHandles) == 0 {
		return
	}
	snapshot := make([]*PrepareHandle, len(l.prepareHandles))
	copy(snapshot, l.prepareHandles)
	for _, h := range snapshot {
		if h.isActive() && h.cb != nil {
			h.cb(h)
		}
	}
}
