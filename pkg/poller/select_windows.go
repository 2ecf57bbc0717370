//go:build windows

package poller

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// maxSelectSockets is how many sockets winsock select can take per set.
// The default FD_SETSIZE is 64 but the set layout is count-prefixed, so a
// larger array works as long as it stays under the documented 512 ceiling.
const maxSelectSockets = 511

var (
	ws2_32     = windows.NewLazySystemDLL("ws2_32.dll")
	procSelect = ws2_32.NewProc("select")
)

// winFdSet mirrors winsock's fd_set: a count followed by a socket array
type winFdSet struct {
	count uint32
	array [maxSelectSockets + 1]windows.Handle
}

func (s *winFdSet) set(fds []int) {
	s.count = uint32(len(fds))
	for i, fd := range fds {
		s.array[i] = windows.Handle(fd)
	}
}

func (s *winFdSet) isSet(fd int) bool {
	for i := uint32(0); i < s.count; i++ {
		if s.array[i] == windows.Handle(fd) {
			return true
		}
	}
	return false
}

type winTimeval struct {
	sec  int32
	usec int32
}

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
	if len(p.fds) >= maxSelectSockets {
		return fmt.Errorf("select poller is full (%d sockets)", maxSelectSockets)
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

	var rset, wset, eset winFdSet
	rset.set(p.fds)
	wset.set(p.fds)
	eset.set(p.fds)

	tv := winTimeval{
		sec:  int32(timeout / time.Second),
		usec: int32((timeout % time.Second) / time.Microsecond),
	}

	// winsock ignores the nfds argument
	ret, _, callErr := procSelect.Call(
		0,
		uintptr(unsafe.Pointer(&rset)),
		uintptr(unsafe.Pointer(&wset)),
		uintptr(unsafe.Pointer(&eset)),
		uintptr(unsafe.Pointer(&tv)),
	)
	if int32(ret) < 0 {
		return nil, fmt.Errorf("select: %w", callErr)
	}
	if ret == 0 {
		return nil, nil
	}

	var out []Event
	for _, fd := range p.fds {
		var m Mask
		if rset.isSet(fd) {
			m |= Readable
		}
		if wset.isSet(fd) {
			m |= Writable
		}
		if eset.isSet(fd) {
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
