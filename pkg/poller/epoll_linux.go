package poller

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is the edge-notify backend.  Sockets are registered for
// EPOLLOUT|EPOLLRDHUP: a completed handshake surfaces as plain writability,
// an RST additionally raises EPOLLRDHUP.
type epollPoller struct {
	epfd    int
	watched map[int]bool
	events  []unix.EpollEvent
}

func newEpoll() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:    epfd,
		watched: make(map[int]bool),
		events:  make([]unix.EpollEvent, 128),
	}, nil
}

func (p *epollPoller) Register(fd int) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLOUT | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}
	p.watched[fd] = true
	return nil
}

func (p *epollPoller) Unregister(fd int) error {
	if !p.watched[fd] {
		return nil
	}
	delete(p.watched, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration) ([]Event, error) {
	ms := int(timeout / time.Millisecond)
	for {
		n, err := unix.EpollWait(p.epfd, p.events, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}
		out := make([]Event, 0, n)
		for _, ev := range p.events[:n] {
			out = append(out, Event{FD: int(ev.Fd), Mask: epollMask(ev.Events)})
		}
		return out, nil
	}
}

func epollMask(events uint32) Mask {
	var m Mask
	if events&unix.EPOLLIN != 0 {
		m |= Readable
	}
	if events&unix.EPOLLOUT != 0 {
		m |= Writable
	}
	// EPOLLRDHUP is the reliable RST signal; plain EPOLLHUP folds into the
	// error bit so the classifier never mistakes it for a peer reset
	if events&unix.EPOLLRDHUP != 0 {
		m |= Hangup
	}
	if events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		m |= Err
	}
	return m
}

func (p *epollPoller) Kind() Kind { return KindEpoll }

func (p *epollPoller) Cap() int { return 0 }

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
