//go:build linux || darwin

package reactor

// maxEpollTimeout caps a blocking wait against the 32-bit timeout
// overflow bug some epoll_wait implementations exhibit for very large
// millisecond timeouts (§4.3 step 5.a). Kept here rather than in
// poller_linux.go since io_poll's own re-poll loop (iopoll.go) and the
// timer collaborator (timer.go) both need it on every platform this
// package builds for.
const maxEpollTimeout = 1789569

// pollEvent is one entry returned from a kernel wait: the fd it refers
// to and the event bits the kernel reported. fd is set to -1 by
// platformInvalidateFD when a not-yet-dispatched event is invalidated
// mid-batch (§4.3 step (e), §9).
type pollEvent struct {
	fd      int
	revents IOEvents
}

// kernelPoller wraps the platform readiness primitive (epoll on Linux,
// kqueue on Darwin) at the lowest level: one-shot add/modify/delete per
// fd, and a blocking wait returning a batch of ready events. It carries
// no watcher table, no reconciliation queue, and no re-poll budget —
// that belongs to io_poll (iopoll.go), which is the loop-level
// algorithm built on top of this primitive.
type kernelPoller interface {
	init() error
	close() error
	add(fd int, events IOEvents) error
	modify(fd int, events IOEvents) error
	del(fd int) error
	// wait blocks for up to timeoutMs (-1 = forever, 0 = return
	// immediately) and appends ready events to buf[:0], returning the
	// filled slice. On Linux, signals, if non-empty, are blocked
	// atomically for the duration of the wait (epoll_pwait); the Darwin
	// kqueue implementation ignores signals.
	wait(timeoutMs int, signals []int, buf []pollEvent) ([]pollEvent, error)
	// fd returns the poller's own backend fd, exposed via Loop.BackendFD.
	fd() int
}
