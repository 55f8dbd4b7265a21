//go:build linux

package govent

import (
	"golang.org/x/sys/unix"
)

// IOEvents is a bitmask of readiness kinds, the host multiplexer's
// readiness enumeration passed through verbatim.
type IOEvents uint32

const (
	// EventRead means the fd is ready for non-blocking reads.
	EventRead IOEvents = unix.EPOLLIN
	// EventWrite means the fd is ready for non-blocking writes.
	EventWrite IOEvents = unix.EPOLLOUT
	// EventHangup means the peer closed its end.
	EventHangup IOEvents = unix.EPOLLHUP
	// EventError means an error condition is pending on the fd.
	EventError IOEvents = unix.EPOLLERR
)

// maxPollEvents mirrors MAX_EVENTS in the original event.c: a small,
// fixed capacity for the epoll_pwait result buffer. One dispatcher
// wake-up processes at most this many ready tuples.
const maxPollEvents = 8

// poller is a thin epoll wrapper keyed by plain file descriptor: it
// keeps a side table from fd to *Event rather than stashing a pointer
// in epoll_event's data union, so callback lookup on wakeup is a plain
// map access.
type poller struct {
	epfd int
	buf  [maxPollEvents]unix.EpollEvent
	byFD map[int]*Event
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, wrapErrno("epoll_create1", err)
	}
	return &poller{epfd: fd, byFD: make(map[int]*Event)}, nil
}

func (p *poller) close() error {
	return wrapErrno("close", unix.Close(p.epfd))
}

// add registers fd for the given interest, remembering evt so wait()
// can recover it by fd without a registration-table scan.
func (p *poller) add(fd int, interest IOEvents, evt *Event) error {
	ev := unix.EpollEvent{Events: uint32(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return wrapErrno("epoll_ctl_add", err)
	}
	p.byFD[fd] = evt
	return nil
}

// modify resubmits the readiness mask for an already-registered fd.
func (p *poller) modify(fd int, interest IOEvents) error {
	ev := unix.EpollEvent{Events: uint32(interest), Fd: int32(fd)}
	return wrapErrno("epoll_ctl_mod", unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev))
}

// delete unregisters fd. Safe to call even if the fd was already
// closed by the caller; the caller is responsible for not leaking fds
// it owns, same contract as event_remove.
func (p *poller) delete(fd int) error {
	delete(p.byFD, fd)
	return wrapErrno("epoll_ctl_del", unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil))
}

// wait issues exactly one epoll_pwait call, honoring sigmask, and
// returns the ready tuples as (*Event, observed bits) pairs, copied out
// of the poller's reused epoll result buffer into freshly allocated
// slices.
func (p *poller) wait(sigmask *unix.Sigset_t) ([]*Event, []IOEvents, error) {
	n, err := unix.EpollPwait(p.epfd, p.buf[:], -1, sigmask)
	if err != nil {
		return nil, nil, wrapErrno("epoll_pwait", err)
	}
	events := make([]*Event, 0, n)
	bits := make([]IOEvents, 0, n)
	for i := 0; i < n; i++ {
		evt, ok := p.byFD[int(p.buf[i].Fd)]
		if !ok {
			continue
		}
		events = append(events, evt)
		bits = append(bits, IOEvents(p.buf[i].Events))
	}
	return events, bits, nil
}

func closeFD(fd int) {
	unix.Close(fd)
}
