//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller wraps a single epoll instance. Hermes runs exactly one poller per
// reactor, polled from exactly one goroutine — there is no SMP fan-out of
// the event loop itself, only of the connections it drives.
type poller struct {
	epfd int
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &poller{epfd: fd}, nil
}

func (p *poller) close() error { return unix.Close(p.epfd) }

func (p *poller) add(fd int, writable bool) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}
	if writable {
		ev.Events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *poller) modify(fd int, writable bool) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: unix.EPOLLIN}
	if writable {
		ev.Events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (p *poller) remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT || err == unix.EBADF {
		return nil
	}
	return err
}

// wait blocks for readiness up to timeoutMicros, rounded down to whole
// milliseconds (epoll_wait's resolution), with any non-zero timeout below
// 1ms raised to 1ms. It writes the ready events into events[:0], returning
// the used slice. A zero-length result
// with a nil error is the common steady-state outcome.
func (p *poller) wait(events []unix.EpollEvent, timeoutMicros int) ([]unix.EpollEvent, error) {
	timeoutMillis := timeoutMicros / 1000
	if timeoutMicros > 0 && timeoutMillis == 0 {
		timeoutMillis = 1
	}
	n, err := unix.EpollWait(p.epfd, events[:cap(events)], timeoutMillis)
	if err == unix.EINTR {
		return events[:0], nil
	}
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	return events[:n], nil
}
