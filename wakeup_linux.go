//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// createWakeFD creates an eventfd for the async handle's cross-thread
// wakeup (§5: "a dedicated 'async' handle that writes a byte to a
// pipe-like fd"). The single eventfd serves as both ends.
func createWakeFD() (read int, write int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

// drainWakeFD drains all pending wakeups on an eventfd.
func drainWakeFD(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}

// signalWakeFD writes one wakeup unit to the eventfd.
func signalWakeFD(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	return err
}
