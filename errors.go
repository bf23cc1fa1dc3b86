//go:build linux || darwin

// Package reactor implements a single-threaded, readiness-polling event
// loop core in the style of libuv: a Loop driver, an fd-indexed I/O
// watcher table backed by epoll/kqueue, and a Handle lifecycle shared by
// every concrete handle the loop drives.
package reactor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error kinds returned by loop operations, mirroring the small, stable
// set of conditions a readiness poller can actually produce.
var (
	ErrInvalidArgument   = errors.New("reactor: invalid argument")
	ErrNoMemory          = errors.New("reactor: out of memory")
	ErrNotSupported      = errors.New("reactor: operation not supported")
	ErrNoEntry           = errors.New("reactor: no such entry")
	ErrBadFileDescriptor = errors.New("reactor: bad file descriptor")
	ErrNoBufferSpace     = errors.New("reactor: no buffer space available")
	ErrIO                = errors.New("reactor: I/O error")
	ErrInterrupted       = errors.New("reactor: interrupted system call")

	// ErrLoopClosed is returned by operations attempted on a Loop past
	// loop_close.
	ErrLoopClosed = errors.New("reactor: loop is closed")

	// ErrHandleClosing identifies a handle already past Close. No
	// operation in this package returns it: starting a closing handle
	// is a silent no-op.
	ErrHandleClosing = errors.New("reactor: handle is closing")
)

// kindError wraps one of the sentinel error kinds above with the
// underlying syscall errno, preserving errors.Is/As compatibility
// through Unwrap.
type kindError struct {
	Kind  error
	Cause error
	Msg   string
}

func (e *kindError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return e.Kind.Error()
}

func (e *kindError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// wrapErrno classifies a raw unix.Errno (or any error) into one of the
// loop's error kinds, preserving the original via Unwrap so both
// errors.Is(err, ErrBadFileDescriptor) and errors.Is(err, unix.EBADF)
// succeed.
func wrapErrno(msg string, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrIO
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.EINVAL:
			kind = ErrInvalidArgument
		case unix.ENOMEM:
			kind = ErrNoMemory
		case unix.ENOSYS, unix.EPERM:
			kind = ErrNotSupported
		case unix.ENOENT:
			kind = ErrNoEntry
		case unix.EBADF:
			kind = ErrBadFileDescriptor
		case unix.ENOBUFS, unix.ENFILE, unix.EMFILE:
			kind = ErrNoBufferSpace
		case unix.EINTR:
			kind = ErrInterrupted
		}
	}
	return &kindError{Kind: kind, Cause: err, Msg: msg}
}

// fatalf logs at error level via the loop's logger (if any) and panics.
// Used for conditions the spec treats as unrecoverable: watcher table
// allocation failure, registration-queue desync discovered mid-poll.
// Go has no abort(); panic is the idiomatic analogue, recoverable in
// tests but never returned as an error since the loop's invariants are
// already broken by the time it fires.
func fatalf(l *Loop, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l != nil {
		l.logError(msg)
	}
	panic("reactor: " + msg)
}
