//go:build linux || darwin

package reactor

import "sync"

// AsyncHandle is the loop's only cross-thread entry point (§5): any
// goroutine may call Send to schedule a callback on the loop's own
// goroutine, coalescing multiple sends between wakeups into a single
// wake fd write.
type AsyncHandle struct {
	Handle

	mu      sync.Mutex
	ingress *ChunkedIngress
	pending bool
	req     *asyncRequest

	watcher Watcher
	readFD  int
	writeFD int
}

// NewAsync allocates and starts an AsyncHandle bound to loop. The
// handle has no callback of its own: only the functions queued by Send
// run, on the loop goroutine, each time its wake fd is drained.
func NewAsync(loop *Loop) (*AsyncHandle, error) {
	a := &AsyncHandle{ingress: NewChunkedIngress()}
	initHandle(&a.Handle, loop, HandleTypeAsync)

	read, write, err := createWakeFD()
	if err != nil {
		return nil, err
	}
	a.readFD = read
	a.writeFD = write

	ioInit(&a.watcher, read, a.onReadable)
	loop.ioStart(&a.watcher, EventReadable)
	a.startActive()

	return a, nil
}

// Send enqueues fn to run on the loop goroutine and wakes the loop if
// it may be blocked in io_poll. Safe to call from any goroutine,
// including before the loop's first Run. The first Send since the
// handle was last drained registers an active_reqs entry (§3/§4.4),
// so the loop stays alive for a sender on another goroutine even if
// every handle happens to be unreferenced.
func (a *AsyncHandle) Send(fn func()) {
	a.mu.Lock()
	a.ingress.Push(fn)
	needWake := !a.pending
	a.pending = true
	if needWake {
		_, a.req = a.loop.requests.NewRequest()
	}
	a.mu.Unlock()

	if needWake {
		_ = signalWakeFD(a.writeFD)
	}
}

// onReadable drains the wake fd and runs every callback queued since
// the last drain. Invoked directly from io_poll's dispatch (§4.3),
// matching how every other watcher callback runs.
func (a *AsyncHandle) onReadable(loop *Loop, w *Watcher, revents IOEvents) {
	drainWakeFD(a.readFD)

	a.mu.Lock()
	a.pending = false
	req := a.req
	a.req = nil
	var batch []func()
	for {
		fn, ok := a.ingress.Pop()
		if !ok {
			break
		}
		batch = append(batch, fn)
	}
	a.mu.Unlock()

	if req != nil {
		req.Complete()
	}

	for _, fn := range batch {
		fn()
	}
}

// Close begins the two-phase close for this handle, releasing both
// ends of its wake fd and cancelling any request still outstanding
// for an undrained batch.
func (a *AsyncHandle) Close(cb CloseCallback) {
	a.loop.ioClose(&a.watcher)
	_ = closeFD(a.readFD)
	_ = closeFD(a.writeFD)

	a.mu.Lock()
	req := a.req
	a.req = nil
	a.mu.Unlock()
	if req != nil {
		req.Cancel(ErrLoopClosed)
	}

	a.unref()
	a.close(cb)
}
