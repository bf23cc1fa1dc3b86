//go:build darwin

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// kqueuePoller is the Darwin kernelPoller implementation. kqueue has no
// direct "modify interest set" call; a modify is expressed as the
// symmetric difference of adds/deletes against the previously
// registered event bits, tracked per-fd here since kqueue itself is
// stateless from the caller's point of view.
type kqueuePoller struct {
	kq        int
	interests map[int]IOEvents
}

func newKernelPoller() kernelPoller {
	return &kqueuePoller{kq: -1, interests: make(map[int]IOEvents)}
}

func (p *kqueuePoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return wrapErrno("kqueue", err)
	}
	if err := setCloexec(kq); err != nil {
		_ = closeFD(kq)
		return wrapErrno("kqueue cloexec", err)
	}
	p.kq = kq
	return nil
}

func (p *kqueuePoller) close() error {
	if p.kq < 0 {
		return nil
	}
	err := closeFD(p.kq)
	p.kq = -1
	if err != nil {
		return wrapErrno("close backend_fd", err)
	}
	return nil
}

func (p *kqueuePoller) fd() int { return p.kq }

func (p *kqueuePoller) add(fd int, events IOEvents) error {
	if err := p.apply(fd, 0, events); err != nil {
		return err
	}
	p.interests[fd] = events
	return nil
}

func (p *kqueuePoller) modify(fd int, events IOEvents) error {
	old := p.interests[fd]
	if err := p.apply(fd, old, events); err != nil {
		return err
	}
	p.interests[fd] = events
	return nil
}

func (p *kqueuePoller) del(fd int) error {
	old := p.interests[fd]
	delete(p.interests, fd)
	return p.apply(fd, old, 0)
}

// apply issues the kevent ADD/DELETE changes needed to move fd's
// registration from old to want.
func (p *kqueuePoller) apply(fd int, old, want IOEvents) error {
	var changes []unix.Kevent_t
	removed := old &^ want
	added := want &^ old
	if removed&EventReadable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if removed&EventWritable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}
	if added&EventReadable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE))
	}
	if added&EventWritable != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE))
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return wrapErrno("kevent", err)
	}
	return nil
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
}

func (p *kqueuePoller) wait(timeoutMs int, signals []int, buf []pollEvent) ([]pollEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64(timeoutMs%1000) * 1000000,
		}
	}

	events := make([]unix.Kevent_t, cap(buf))
	if len(events) == 0 {
		events = make([]unix.Kevent_t, 1024)
	}

	n, err := unix.Kevent(p.kq, nil, events, ts)
	if err != nil {
		return buf[:0], wrapErrno("kevent(wait)", err)
	}

	out := buf[:0]
	for i := 0; i < n; i++ {
		ev := events[i]
		var revents IOEvents
		switch ev.Filter {
		case unix.EVFILT_READ:
			revents |= EventReadable
		case unix.EVFILT_WRITE:
			revents |= EventWritable
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			revents |= EventError
		}
		if ev.Flags&unix.EV_EOF != 0 {
			revents |= EventHangup
		}
		out = append(out, pollEvent{fd: int(ev.Ident), revents: revents})
	}
	return out, nil
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, unix.EEXIST)
}
