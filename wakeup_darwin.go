//go:build darwin

package reactor

import (
	"golang.org/x/sys/unix"
)

// createWakeFD creates a self-pipe for the async handle's cross-thread
// wakeup, since kqueue offers no eventfd analogue.
func createWakeFD() (read int, write int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	if err := setCloexec(fds[0]); err != nil {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
		return -1, -1, err
	}
	if err := setCloexec(fds[1]); err != nil {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
		return -1, -1, err
	}
	if err := setNonblock(fds[0]); err != nil {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
		return -1, -1, err
	}
	if err := setNonblock(fds[1]); err != nil {
		_ = closeFD(fds[0])
		_ = closeFD(fds[1])
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// drainWakeFD drains all pending bytes from the self-pipe.
func drainWakeFD(fd int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

// signalWakeFD writes one byte to the self-pipe's write end.
func signalWakeFD(fd int) error {
	_, err := unix.Write(fd, []byte{1})
	return err
}
