package poller

import (
	"fmt"
	"runtime"
	"time"
)

// Kind selects a readiness backend
type Kind string

const (
	KindAuto   Kind = "auto"
	KindEpoll  Kind = "epoll"
	KindPoll   Kind = "poll"
	KindSelect Kind = "select"
)

// Mask is a backend-independent readiness event mask.  Backends surface
// enough bits for the scan driver to classify the outcome of a non-blocking
// connect; which combinations mean what differs per backend, so the driver
// switches on Kind.
type Mask uint8

const (
	// Readable means data or a pending error can be read from the socket
	Readable Mask = 1 << iota
	// Writable means the connect completed (successfully or not)
	Writable
	// Hangup means the peer closed its side; on the epoll backend this is
	// the EPOLLRDHUP bit, the reliable RST signal
	Hangup
	// Err means the kernel flagged a socket error condition
	Err
)

func (m Mask) String() string {
	s := ""
	if m&Readable != 0 {
		s += "r"
	}
	if m&Writable != 0 {
		s += "w"
	}
	if m&Hangup != 0 {
		s += "h"
	}
	if m&Err != 0 {
		s += "e"
	}
	if s == "" {
		return "none"
	}
	return s
}

// Event pairs a descriptor with the readiness mask the kernel reported
type Event struct {
	FD   int
	Mask Mask
}

// Poller watches a set of non-blocking sockets for connect outcomes.
// Implementations are single-threaded like the scan driver that owns them.
type Poller interface {
	// Register adds a descriptor to the watch set
	Register(fd int) error

	// Unregister removes a descriptor from the watch set.  Unregistering a
	// descriptor that is not watched is a no-op.
	Unregister(fd int) error

	// Wait blocks up to timeout for readiness events.  A zero timeout
	// returns immediately with whatever is pending.
	Wait(timeout time.Duration) ([]Event, error)

	// Kind reports which backend this is, for verdict classification
	Kind() Kind

	// Cap is the hard limit on watched descriptors, 0 if unbounded
	Cap() int

	// Close releases the backend
	Close() error
}

// Resolve maps KindAuto to the preferred backend for this platform.
// epoll is never the automatic choice: the level-triggered backends have
// proven more predictable for connect-scan workloads, so edge notification
// is opt-in.
func Resolve(kind Kind) Kind {
	if kind != KindAuto {
		return kind
	}
	if runtime.GOOS == "windows" {
		return KindSelect
	}
	return KindPoll
}

// New creates a poller of the given kind, resolving KindAuto per platform
func New(kind Kind) (Poller, error) {
	switch Resolve(kind) {
	case KindEpoll:
		return newEpoll()
	case KindPoll:
		return newPoll()
	case KindSelect:
		return newSelect()
	default:
		return nil, fmt.Errorf("unknown poll type: %s", kind)
	}
}
