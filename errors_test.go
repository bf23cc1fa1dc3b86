//go:build linux || darwin

package reactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWrapErrnoClassification(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		kind  error
	}{
		{unix.EINVAL, ErrInvalidArgument},
		{unix.ENOMEM, ErrNoMemory},
		{unix.ENOSYS, ErrNotSupported},
		{unix.EPERM, ErrNotSupported},
		{unix.ENOENT, ErrNoEntry},
		{unix.EBADF, ErrBadFileDescriptor},
		{unix.ENOBUFS, ErrNoBufferSpace},
		{unix.EMFILE, ErrNoBufferSpace},
		{unix.EINTR, ErrInterrupted},
	}
	for _, c := range cases {
		err := wrapErrno("op", c.errno)
		require.ErrorIs(t, err, c.kind, "errno %v", c.errno)
		require.ErrorIs(t, err, c.errno, "original errno must remain reachable via errors.Is")
	}
}

func TestWrapErrnoUnknownDefaultsToIO(t *testing.T) {
	err := wrapErrno("op", unix.E2BIG)
	require.ErrorIs(t, err, ErrIO)
}

func TestWrapErrnoNilIsNil(t *testing.T) {
	require.NoError(t, wrapErrno("op", nil))
}

func TestWrapErrnoNonErrnoCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapErrno("op", cause)
	require.ErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, cause)
}

func TestFatalfPanicsAndLogs(t *testing.T) {
	l := newTestLoop(t)
	require.PanicsWithValue(t, "reactor: disk on fire", func() {
		fatalf(l, "disk on fire")
	})
}

func TestFatalfNilLoopStillPanics(t *testing.T) {
	require.Panics(t, func() {
		fatalf(nil, "no loop")
	})
}
