package reactor

import (
	"sync"
	"weak"
)

// reqState is the lifecycle of a tracked asynchronous request.
type reqState int32

const (
	reqPending reqState = iota
	reqDone
)

// asyncRequest is a handle-less unit of outstanding work the loop must
// keep itself alive for (§3 active_reqs), e.g. an in-flight async
// handle wakeup that hasn't been drained yet. Concrete req types built
// on top of this core register one per outstanding operation and mark
// it done when it completes; nothing here assumes a particular
// operation kind, matching the spec's scope (no DNS/fs/process reqs in
// this package).
type asyncRequest struct {
	mu    sync.Mutex
	state reqState
	err   error
}

func (p *asyncRequest) State() reqState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Cancel marks the request done with err, if it was still pending.
func (p *asyncRequest) Cancel(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == reqPending {
		p.state = reqDone
		p.err = err
	}
}

// Complete marks the request done successfully, if it was still
// pending.
func (p *asyncRequest) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == reqPending {
		p.state = reqDone
	}
}

// requestRegistry tracks outstanding asyncRequests via weak pointers so
// a request that's simply garbage collected (never explicitly
// completed) doesn't leak the loop's active_reqs accounting. It scans
// itself in batches off a ring buffer rather than all at once, so
// scavenging cost is bounded per call regardless of how many requests
// have accumulated.
type requestRegistry struct {
	data map[uint64]weak.Pointer[asyncRequest]
	ring []uint64
	head int

	nextID uint64
	mu     sync.RWMutex

	scavengeMu sync.Mutex
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{
		data:   make(map[uint64]weak.Pointer[asyncRequest]),
		ring:   make([]uint64, 0, 1024),
		nextID: 1,
	}
}

// ActiveCount returns the number of tracked requests still pending
// (the spec's active_reqs, §3/§4.4 liveness), scanning the live set
// the same way Scavenge does: a weak pointer whose referent is gone
// is treated as settled.
func (r *requestRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, wp := range r.data {
		if p := wp.Value(); p != nil && p.State() == reqPending {
			n++
		}
	}
	return n
}

// NewRequest creates and registers a new asyncRequest.
func (r *requestRegistry) NewRequest() (uint64, *asyncRequest) {
	p := &asyncRequest{state: reqPending}
	wp := weak.Make(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.data[id] = wp
	r.ring = append(r.ring, id)

	return id, p
}

// Scavenge removes up to batchSize ring entries whose request has
// either been garbage collected or settled.
func (r *requestRegistry) Scavenge(batchSize int) {
	r.scavengeMu.Lock()
	defer r.scavengeMu.Unlock()

	if batchSize <= 0 {
		return
	}

	r.mu.RLock()
	ringLen := len(r.ring)
	if ringLen == 0 {
		r.mu.RUnlock()
		return
	}

	start := r.head
	end := min(start+batchSize, ringLen)

	type item struct {
		id  uint64
		idx int
	}
	items := make([]item, 0, end-start)
	for i := start; i < end; i++ {
		if id := r.ring[i]; id != 0 {
			items = append(items, item{id, i})
		}
	}

	wps := make([]weak.Pointer[asyncRequest], len(items))
	validItems := items[:0]
	for _, it := range items {
		if wp, ok := r.data[it.id]; ok {
			wps[len(validItems)] = wp
			validItems = append(validItems, it)
		}
	}
	wps = wps[:len(validItems)]

	nextHead := end
	if nextHead >= ringLen {
		nextHead = 0
	}
	r.mu.RUnlock()

	cycleCompleted := nextHead == 0

	var itemsToRemove []item
	for i, it := range validItems {
		val := wps[i].Value()
		if val == nil || val.State() != reqPending {
			itemsToRemove = append(itemsToRemove, it)
		}
	}

	if len(itemsToRemove) > 0 || cycleCompleted {
		r.mu.Lock()
		for _, it := range itemsToRemove {
			delete(r.data, it.id)
			if it.idx < len(r.ring) && r.ring[it.idx] == it.id {
				r.ring[it.idx] = 0
			}
		}
		r.head = nextHead

		if cycleCompleted {
			active := len(r.data)
			capacity := len(r.ring)
			if capacity > 256 && float64(active) < float64(capacity)*0.25 {
				r.compactAndRenew()
			}
		}
		r.mu.Unlock()
	} else {
		r.mu.Lock()
		r.head = nextHead
		r.mu.Unlock()
	}
}

// CancelAll cancels every pending request with err; called from
// loop_close so nothing is left waiting on a loop that no longer runs.
func (r *requestRegistry) CancelAll(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, wp := range r.data {
		if p := wp.Value(); p != nil {
			p.Cancel(err)
		}
		delete(r.data, id)
	}
	r.ring = r.ring[:0]
	r.head = 0
}

// compactAndRenew drops null markers from the ring and rebuilds data,
// reclaiming the backing arrays Go's delete() leaves behind. Must be
// called with mu held.
func (r *requestRegistry) compactAndRenew() {
	newRing := make([]uint64, 0, len(r.data))
	newData := make(map[uint64]weak.Pointer[asyncRequest], len(r.data))

	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			newRing = append(newRing, id)
			newData[id] = wp
		}
	}

	r.ring = newRing
	r.data = newData
	r.head = 0
}
