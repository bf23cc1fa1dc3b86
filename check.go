//go:build linux || darwin

package reactor

// CheckHandle runs its callback once per loop iteration immediately
// after io_poll returns (§4.1 step 9).
type CheckHandle struct {
	Handle
	cb func(h *CheckHandle)
}

// NewCheck allocates a CheckHandle bound to loop, not yet started.
func NewCheck(loop *Loop) *CheckHandle {
	h := &CheckHandle{}
	initHandle(&h.Handle, loop, HandleTypeCheck)
	return h
}

func (h *CheckHandle) Start(cb func(h *CheckHandle)) {
	if h.isClosing() {
		return
	}
	h.cb = cb
	if !h.isActive() {
		h.loop.checkHandles = append(h.loop.checkHandles, h)
	}
	h.startActive()
}

func (h *CheckHandle) Stop() {
	if !h.isActive() {
		return
	}
	h.stopActive()
	h.loop.removeCheck(h)
}

func (h *CheckHandle) Close(cb CloseCallback) {
	h.Stop()
	h.close(cb)
}

func (l *Loop) removeCheck(h *CheckHandle) {
	for i, c := range l.checkHandles {
		if c == h {
			l.checkHandles = append(l.checkHandles[:i], l.checkHandles[i+1:]...)
			return
		}
	}
}

func (l *Loop) runCheck() {
	if len(l.checkHandles) == 0 {
		return
	}
	snapshot := make([]*CheckHandle, len(l.checkHandles))
	copy(snapshot, l.checkHandles)
	for _, h := range snapshot {
		if h.isActive() && h.cb != nil {
			h.cb(h)
		}
	}
}
