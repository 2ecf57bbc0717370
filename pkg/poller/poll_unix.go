//go:build unix

package poller

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller is the level-triggered backend, the default on linux and
// darwin.  Sockets are watched for POLLOUT; POLLHUP and POLLERR are always
// reported by the kernel regardless of the requested events.
type pollPoller struct {
	fds   []unix.PollFd
	index map[int]int
}

func newPoll() (Poller, error) {
	return &pollPoller{index: make(map[int]int)}, nil
}

func (p *pollPoller) Register(fd int) error {
	if _, ok := p.index[fd]; ok {
		return nil
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
	return nil
}

func (p *pollPoller) Unregister(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return nil
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration) ([]Event, error) {
	if len(p.fds) == 0 {
		return nil, nil
	}
	ms := int(timeout / time.Millisecond)
	for {
		n, err := unix.Poll(p.fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return nil, nil
		}
		out := make([]Event, 0, n)
		for i := range p.fds {
			re := p.fds[i].Revents
			if re == 0 {
				continue
			}
			out = append(out, Event{FD: int(p.fds[i].Fd), Mask: pollMask(re)})
		}
		return out, nil
	}
}

func pollMask(revents int16) Mask {
	var m Mask
	if revents&unix.POLLIN != 0 {
		m |= Readable
	}
	if revents&unix.POLLOUT != 0 {
		m |= Writable
	}
	if revents&unix.POLLHUP != 0 {
		m |= Hangup
	}
	if revents&unix.POLLERR != 0 {
		m |= Err
	}
	return m
}

func (p *pollPoller) Kind() Kind { return KindPoll }

func (p *pollPoller) Cap() int { return 0 }

func (p *pollPoller) Close() error { return nil }
