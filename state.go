package reactor

import (
	"sync/atomic"
)

// LoopState represents where a Loop sits in its run lifecycle.
//
// State Machine:
//
//	Initial (0) → Running (1)     [Run() entered]
//	Running (1) → Stopping (2)    [Run() returns, for any reason]
//	Stopping (2) → Running (1)    [Run() entered again]
//	Initial (0) → Closed (3)      [Close() before any Run()]
//	Stopping (2) → Closed (3)     [Close() after Run() returned]
//
// Transitions use TryTransition (CAS), except that Run uses Store to
// enter Stopping when it returns with the loop no longer alive.
type LoopState uint32

const (
	// StateInitial is the state after loop_init, before Run has been
	// called.
	StateInitial LoopState = iota
	// StateRunning indicates the loop is inside run(), somewhere in the
	// timers→pending→idle→prepare→io_poll→check phase sequence.
	StateRunning
	// StateStopping indicates Run has returned (after Stop(), after one
	// iteration in RunOnce/RunNoWait, or once the loop is no longer
	// alive); the loop may be run again or closed.
	StateStopping
	// StateClosed indicates loop_close has completed; the loop cannot be
	// reused.
	StateClosed
)

func (s LoopState) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// FastState is a lock-free state machine with cache-line padding,
// preventing false sharing between cores on the hot path (checked every
// loop iteration and on every handle operation).
type FastState struct { // betteralign:ignore
	_ [64]byte      //nolint:unused
	v atomic.Uint64 // State value
	_ [56]byte      //nolint:unused
}

// NewFastState creates a new state machine in StateInitial.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateInitial))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() LoopState {
	return LoopState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
func (s *FastState) Store(state LoopState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another, returning whether it succeeded.
func (s *FastState) TryTransition(from, to LoopState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsClosed reports whether the state is StateClosed.
func (s *FastState) IsClosed() bool {
	return s.Load() == StateClosed
}
