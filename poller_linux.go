//go:build linux

package reactor

import (
	"errors"

	"golang.org/x/sys/unix"
)

// epollPoller is the Linux kernelPoller implementation.
type epollPoller struct {
	epfd int
}

func newKernelPoller() kernelPoller {
	return &epollPoller{epfd: -1}
}

func (p *epollPoller) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return wrapErrno("epoll_create1", err)
	}
	p.epfd = fd
	return nil
}

func (p *epollPoller) close() error {
	if p.epfd < 0 {
		return nil
	}
	err := closeFD(p.epfd)
	p.epfd = -1
	if err != nil {
		return wrapErrno("close backend_fd", err)
	}
	return nil
}

func (p *epollPoller) fd() int { return p.epfd }

func (p *epollPoller) add(fd int, events IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return wrapErrno("epoll_ctl(ADD)", err)
	}
	return nil
}

func (p *epollPoller) modify(fd int, events IOEvents) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return wrapErrno("epoll_ctl(MOD)", err)
	}
	return nil
}

func (p *epollPoller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return wrapErrno("epoll_ctl(DEL)", err)
	}
	return nil
}

func (p *epollPoller) wait(timeoutMs int, signals []int, buf []pollEvent) ([]pollEvent, error) {
	if timeoutMs > maxEpollTimeout {
		timeoutMs = maxEpollTimeout
	}

	events := make([]unix.EpollEvent, cap(buf))
	if len(events) == 0 {
		events = make([]unix.EpollEvent, 1024)
	}

	var n int
	var err error
	if len(signals) > 0 {
		var set unix.Sigset_t
		for _, s := range signals {
			addSignalToSet(&set, s)
		}
		n, err = unix.EpollPwait(p.epfd, events, timeoutMs, &set)
	} else {
		n, err = unix.EpollWait(p.epfd, events, timeoutMs)
	}
	if err != nil {
		return buf[:0], wrapErrno("epoll_wait", err)
	}

	out := buf[:0]
	for i := 0; i < n; i++ {
		out = append(out, pollEvent{
			fd:      int(events[i].Fd),
			revents: epollToEvents(events[i].Events),
		})
	}
	return out, nil
}

func addSignalToSet(set *unix.Sigset_t, sig int) {
	// unix.Sigset_t is a fixed-size bitmap; signals are 1-indexed.
	word := (sig - 1) / 32
	bit := uint32((sig - 1) % 32)
	if word >= 0 && word < len(set.Val) {
		set.Val[word] |= 1 << bit
	}
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventReadable != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWritable != 0 {
		e |= unix.EPOLLOUT
	}
	if events&EventPriority != 0 {
		e |= unix.EPOLLPRI
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventReadable
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWritable
	}
	if e&unix.EPOLLPRI != 0 {
		events |= EventPriority
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 || e&unix.EPOLLRDHUP != 0 {
		events |= EventHangup
	}
	return events
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, unix.EEXIST)
}
