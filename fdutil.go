//go:build linux || darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor, retrying once on EINTR as close(2)
// can be interrupted on some platforms.
func closeFD(fd int) error {
	err := unix.Close(fd)
	if err == unix.EINTR {
		err = unix.Close(fd)
	}
	return err
}

// readFD reads from a file descriptor. EAGAIN and EINTR are returned
// as errors, unchanged from unix.Read.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock puts fd into non-blocking mode, a precondition for every
// fd this loop ever polls (§4.1 loop_init's "fd utilities" component).
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// setCloexec sets the close-on-exec flag on fd.
func setCloexec(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	return err
}
