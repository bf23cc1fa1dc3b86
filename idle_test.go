//go:build linux || darwin

package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdleRunsEveryIterationWhileActive(t *testing.T) {
	l := newTestLoop(t)
	idle := NewIdle(l)
	defer idle.Close(nil)

	calls := 0
	idle.Start(func(*IdleHandle) { calls++ })
	l.runIdle()
	l.runIdle()
	require.Equal(t, 2, calls)
}

func TestIdleStopPreventsFurtherCalls(t *testing.T) {
	l := newTestLoop(t)
	idle := NewIdle(l)
	defer idle.Close(nil)

	calls := 0
	idle.Start(func(*IdleHandle) { calls++ })
	idle.Stop()
	l.runIdle()
	require.Equal(t, 0, calls)
	require.NotContains(t, l.idleHandles, idle)
}

func TestIdleRestartDoesNotDuplicateListEntry(t *testing.T) {
	l := newTestLoop(t)
	idle := NewIdle(l)
	defer idle.Close(nil)

	idle.Start(func(*IdleHandle) {})
	idle.Start(func(*IdleHandle) {})
	require.Len(t, l.idleHandles, 1)
}

func TestIdleMutationDuringCallbackTakesEffectNextPass(t *testing.T) {
	l := newTestLoop(t)
	idle := NewIdle(l)
	defer idle.Close(nil)

	second := NewIdle(l)
	defer second.Close(nil)

	var secondCalls int
	idle.Start(func(*IdleHandle) {
		second.Start(func(*IdleHandle) { secondCalls++ })
	})

	l.runIdle()
	require.Equal(t, 0, secondCalls, "a handle started mid-pass must not run in the same pass")

	l.runIdle()
	require.Equal(t, 1, secondCalls)
}

func TestIdleCloseStopsAndFinalizes(t *testing.T) {
	l := newTestLoop(t)
	idle := NewIdle(l)

	var closed bool
	idle.Start(func(*IdleHandle) {})
	idle.Close(func(*Handle) { closed = true })
	l.runClosingHandles()

	require.True(t, closed)
	require.NotContains(t, l.idleHandles, idle)
}
