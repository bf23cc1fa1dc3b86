//go:build linux || darwin

package reactor

// IOEvents is the bitmask of interests a Watcher can register and the
// event bits a dispatch can report.
type IOEvents uint32

const (
	// EventReadable indicates the fd is ready for reading.
	EventReadable IOEvents = 1 << iota
	// EventWritable indicates the fd is ready for writing.
	EventWritable
	// EventPriority indicates out-of-band/priority data is available.
	EventPriority
	// EventHangup indicates the peer closed its end. Always delivered
	// regardless of registered interest (§4.3 step 5.e).
	EventHangup
	// EventError indicates an error condition on the fd. Always
	// delivered regardless of registered interest.
	EventError
)

// WatcherCallback is invoked with the owning loop, the watcher, and the
// masked event bits that fired.
type WatcherCallback func(loop *Loop, w *Watcher, revents IOEvents)

// Watcher binds interest in an fd to a callback (§3). It carries its
// own intrusive list nodes for watcher_queue and pending_queue so that
// queueing never allocates.
type Watcher struct {
	fd      int
	events  IOEvents // last reconciled with the kernel
	pevents IOEvents // desired
	cb      WatcherCallback

	// isSignal marks the loop's signal watcher, which must always be
	// the last callback invoked within a single dispatch (§4.3 step
	// 5.e, §9).
	isSignal bool

	wqNext, wqPrev *Watcher
	onWatcherQueue bool

	pqNext, pqPrev *Watcher
	onPendingQueue bool
}

// ioInit initializes a Watcher in place, ready for io_start.
func ioInit(w *Watcher, fd int, cb WatcherCallback) {
	*w = Watcher{fd: fd, cb: cb}
}

// watcherQueueList is the loop's watcher_queue: watchers whose pevents
// differ from their last-reconciled events (invariant 4).
type watcherQueueList struct {
	head, tail *Watcher
}

func (q *watcherQueueList) empty() bool { return q.head == nil }

func (q *watcherQueueList) pushBack(w *Watcher) {
	if w.onWatcherQueue {
		return
	}
	w.wqNext = nil
	w.wqPrev = q.tail
	if q.tail != nil {
		q.tail.wqNext = w
	} else {
		q.head = w
	}
	q.tail = w
	w.onWatcherQueue = true
}

func (q *watcherQueueList) remove(w *Watcher) {
	if !w.onWatcherQueue {
		return
	}
	if w.wqPrev != nil {
		w.wqPrev.wqNext = w.wqNext
	} else {
		q.head = w.wqNext
	}
	if w.wqNext != nil {
		w.wqNext.wqPrev = w.wqPrev
	} else {
		q.tail = w.wqPrev
	}
	w.wqNext, w.wqPrev = nil, nil
	w.onWatcherQueue = false
}

// detach unlinks the whole list and returns its former head, leaving
// the list empty — used by io_poll to drain watcher_queue before
// reconciling (§4.3 step 2).
func (q *watcherQueueList) detach() *Watcher {
	head := q.head
	q.head, q.tail = nil, nil
	return head
}

// pendingQueueList is the loop's pending_queue: watchers whose
// callback must run in the next pending phase without consulting the
// kernel (invariant 5).
type pendingQueueList struct {
	head, tail *Watcher
}

func (q *pendingQueueList) empty() bool { return q.head == nil }

func (q *pendingQueueList) pushBack(w *Watcher) {
	if w.onPendingQueue {
		return
	}
	w.pqNext = nil
	w.pqPrev = q.tail
	if q.tail != nil {
		q.tail.pqNext = w
	} else {
		q.head = w
	}
	q.tail = w
	w.onPendingQueue = true
}

func (q *pendingQueueList) remove(w *Watcher) {
	if !w.onPendingQueue {
		return
	}
	if w.pqPrev != nil {
		w.pqPrev.pqNext = w.pqNext
	} else {
		q.head = w.pqNext
	}
	if w.pqNext != nil {
		w.pqNext.pqPrev = w.pqPrev
	} else {
		q.tail = w.pqPrev
	}
	w.pqNext, w.pqPrev = nil, nil
	w.onPendingQueue = false
}

func (q *pendingQueueList) detach() *Watcher {
	head := q.head
	q.head, q.tail = nil, nil
	return head
}

// watcherTable is the resizable fd → *Watcher mapping (§3, §4.2), with
// two trailing sentinel slots reserved for the in-flight event batch
// (invariant 3). Rather than reinterpreting the slice's own trailing
// elements via unsafe pointer casts — the C original's technique —
// the sentinel state is kept as typed fields alongside the table; the
// effect required by the invariant (a callback can patch
// not-yet-dispatched events for an fd it just invalidated) is
// preserved exactly, via platformInvalidateFD below.
type watcherTable struct {
	watchers  []*Watcher
	nwatchers int
	nfds      int

	// sentinelEvents holds the batch currently being dispatched by
	// io_poll; empty (length 0) outside of a dispatch, its backing
	// array reused as the next wait's buffer.
	sentinelEvents []pollEvent
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// maybeResize ensures nwatchers >= length (§4.2). Allocation failure is
// unrecoverable: Go's allocator panics rather than returning an error,
// which already satisfies the spec's "abort" requirement without extra
// code.
func (t *watcherTable) maybeResize(length int) {
	if length <= t.nwatchers {
		return
	}
	n := nextPow2(length+2) - 2
	newWatchers := make([]*Watcher, n+2)
	copy(newWatchers, t.watchers)
	t.watchers = newWatchers
	t.nwatchers = n
}

func (t *watcherTable) get(fd int) *Watcher {
	if fd < 0 || fd >= len(t.watchers) {
		return nil
	}
	return t.watchers[fd]
}

func (t *watcherTable) set(fd int, w *Watcher) {
	t.watchers[fd] = w
}

// invalidate scans the in-flight dispatch batch for fd and marks it -1
// so the dispatch loop skips it (§4.3 step 5.e, §9 fd-reuse race).
func (t *watcherTable) invalidate(fd int) {
	for i := range t.sentinelEvents {
		if t.sentinelEvents[i].fd == fd {
			t.sentinelEvents[i].fd = -1
		}
	}
}

// io_start/io_stop/io_close/io_feed/io_check_fd operate on the owning
// Loop since they touch loop-level queues and the kernel poller.

func (l *Loop) ioStart(w *Watcher, events IOEvents) {
	w.pevents |= events
	l.table.maybeResize(w.fd + 1)

	if w.events == w.pevents {
		return
	}
	if !w.onWatcherQueue {
		l.watcherQueue.pushBack(w)
	}
	if l.table.get(w.fd) == nil {
		l.table.set(w.fd, w)
		l.table.nfds++
	}
}

func (l *Loop) ioStop(w *Watcher, events IOEvents) {
	w.pevents &^= events
	if w.pevents == 0 {
		l.watcherQueue.remove(w)
		if l.table.get(w.fd) == w {
			l.table.set(w.fd, nil)
			l.table.nfds--
		}
		w.events = 0
		return
	}
	if !w.onWatcherQueue {
		l.watcherQueue.pushBack(w)
	}
}

func (l *Loop) ioClose(w *Watcher) {
	l.ioStop(w, EventReadable|EventWritable|EventPriority|EventHangup|EventError)
	l.pendingQueue.remove(w)
	l.platformInvalidateFD(w.fd)
}

func (l *Loop) ioFeed(w *Watcher) {
	l.pendingQueue.pushBack(w)
}

// ioCheckFD probes whether fd is acceptable to the kernel poller by
// attempting ADD then DEL with a benign mask, treating "already
// registered" as success.
func (l *Loop) ioCheckFD(fd int) error {
	err := l.poller.add(fd, EventReadable)
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	if err == nil {
		_ = l.poller.del(fd)
	}
	return nil
}

// platformInvalidateFD patches the in-flight dispatch batch and issues
// a best-effort DEL; errors are ignored since watchers is the source
// of truth for whether fd is still registered (§7 propagation policy).
func (l *Loop) platformInvalidateFD(fd int) {
	l.table.invalidate(fd)
	_ = l.poller.del(fd)
}
