//go:build linux || darwin

package reactor

import (
	"time"
)

// Clock produces monotonic timestamps for the loop. Fast may be coarse;
// Precise is guaranteed monotonic. Both return nanoseconds since an
// unspecified epoch; only differences between calls are meaningful.
//
// The default clock anchors against time.Now()'s monotonic reading, the
// same technique the teacher's tickAnchor/tickElapsedTime pair used for
// drift-free elapsed-time tracking.
type Clock interface {
	Fast() int64
	Precise() int64
}

// systemClock is the default Clock, backed by Go's runtime monotonic
// clock (time.Now() carries a monotonic reading on every supported
// platform; there is no cheaper vDSO-only path exposed by the standard
// library, so Fast and Precise coincide here).
type systemClock struct {
	anchor time.Time
}

func newSystemClock() *systemClock {
	return &systemClock{anchor: time.Now()}
}

func (c *systemClock) Fast() int64 {
	return int64(time.Since(c.anchor))
}

func (c *systemClock) Precise() int64 {
	return int64(time.Since(c.anchor))
}

// nowMillis converts a Clock reading (nanoseconds) to the loop's
// milliseconds-resolution `time` field (§3).
func nowMillis(c Clock) int64 {
	return c.Fast() / int64(time.Millisecond)
}
