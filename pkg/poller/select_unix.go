//go:build linux || darwin

package poller

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// maxSelectSockets is how many descriptors the select backend can watch
// outside windows.  FD_SETSIZE is 1024 and a process keeps stdio plus the
// odd internal descriptor open, so the practical ceiling sits just below.
const maxSelectSockets = 1021

// selectPoller is the fallback backend.  Every watched descriptor goes into
// the read, write and error sets; the mask combinations carry the verdict.
type selectPoller struct {
	fds   []int
	index map[int]bool
}

func newSelect() (Poller, error) {
	return &selectPoller{index: make(map[int]bool)}, nil
}

func (p *selectPoller) Register(fd int) error {
	if p.index[fd] {
		return nil
	}
	if fd >= 1024 {
		return fmt.Errorf("fd %d is out of range for select", fd)
	}
	p.index[fd] = true
	p.fds = append(p.fds, fd)
	return nil
}

func (p *selectPoller) Unregister(fd int) error {
	if !p.index[fd] {
		return nil
	}
	delete(p.index, fd)
	for i, v := range p.fds {
		if v == fd {
			p.fds = append(p.fds[:i], p.fds[i+1:]...)
			break
		}
	}
	return nil
}

func (p *selectPoller) Wait(timeout time.Duration) ([]Event, error) {
	if len(p.fds) == 0 {
		return nil, nil
	}

	var rset, wset, eset unix.FdSet
	for {
		rset.Zero()
		wset.Zero()
		eset.Zero()
		nfd := 0
		for _, fd := range p.fds {
			rset.Set(fd)
			wset.Set(fd)
			eset.Set(fd)
			if fd >= nfd {
				nfd = fd + 1
			}
		}
		tv := unix.NsecToTimeval(timeout.Nanoseconds())
		err := sysSelect(nfd, &rset, &wset, &eset, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		break
	}

	var out []Event
	for _, fd := range p.fds {
		var m Mask
		if rset.IsSet(fd) {
			m |= Readable
		}
		if wset.IsSet(fd) {
			m |= Writable
		}
		if eset.IsSet(fd) {
			m |= Err
		}
		if m != 0 {
			out = append(out, Event{FD: fd, Mask: m})
		}
	}
	return out, nil
}

func (p *selectPoller) Kind() Kind { return KindSelect }

func (p *selectPoller) Cap() int { return maxSelectSockets }

func (p *selectPoller) Close() error { return nil }
