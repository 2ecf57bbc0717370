package registry

import (
	"math"
	"sort"
	"time"

	"github.com/cuemby/ferret/pkg/poller"
	"github.com/cuemby/ferret/pkg/types"
)

// Probe is the per-target state of one attempt series.  It is owned by the
// registry and mutated only by the scan driver and the drain handler.
type Probe struct {
	// Target is the (ip, port, probeIndex) this record probes
	Target types.Target

	// SentTime is when the most recent connect was initiated; the zero
	// value means no probe has been sent yet
	SentTime time.Time

	// SentCount is how many connect attempts have been issued
	SentCount int

	// FD is the current non-blocking socket, -1 when none
	FD int

	// Deleted marks a tombstoned record: socket closed, poller
	// registration gone, awaiting unlinking by queue traversal
	Deleted bool

	// id is assigned at Add time and breaks sorting ties so the reshuffle
	// stays stable across records with equal due times
	id uint64
}

// Registry is the bounded working set of live probe records: a double-ended
// queue ordered by due time plus a descriptor index for drain lookups.
// It is single-threaded, owned by the scan driver.
type Registry struct {
	q      deque
	byFD   map[int]*Probe
	poller poller.Poller
	nextID uint64

	// perIndex counts queued records per probe index.  Written on add,
	// decremented on reap, surfaced for diagnostics only; nothing consults
	// it for a scheduling decision.
	perIndex map[int]int
}

// New creates an empty registry whose sockets are watched by p
func New(p poller.Poller) *Registry {
	return &Registry{
		byFD:     make(map[int]*Probe),
		poller:   p,
		perIndex: make(map[int]int),
	}
}

// Add creates a record for the target and pushes it onto the left end
func (r *Registry) Add(t types.Target) *Probe {
	ps := &Probe{Target: t, FD: -1, id: r.nextID}
	r.nextID++
	r.q.pushFront(ps)
	r.perIndex[t.ProbeIndex]++
	return ps
}

// Len returns the number of records in the queue, tombstones included
func (r *Registry) Len() int { return r.q.len() }

// PeekLeft returns the left-most record without removing it
func (r *Registry) PeekLeft() *Probe { return r.q.peekFront() }

// PopLeft removes and returns the left-most record
func (r *Registry) PopLeft() *Probe {
	ps := r.q.popFront()
	if ps != nil {
		r.perIndex[ps.Target.ProbeIndex]--
	}
	return ps
}

// PopRight removes and returns the right-most record
func (r *Registry) PopRight() *Probe {
	ps := r.q.popBack()
	if ps != nil {
		r.perIndex[ps.Target.ProbeIndex]--
	}
	return ps
}

// RotateLeftToRight moves the left-most record to the right end, so a send
// batch sweeps round-robin across hosts without reindexing the queue
func (r *Registry) RotateLeftToRight() *Probe {
	ps := r.q.popFront()
	if ps == nil {
		return nil
	}
	r.q.pushBack(ps)
	return ps
}

// Lookup resolves a poller event descriptor to its record
func (r *Registry) Lookup(fd int) *Probe {
	return r.byFD[fd]
}

// Attach hands a freshly connected socket to the record, registering it
// with the poller.  A previous socket on the record is released first so
// the descriptor appears exactly once in both the index and the watch set.
func (r *Registry) Attach(ps *Probe, fd int) error {
	if ps.FD >= 0 {
		r.releaseSocket(ps)
	}
	ps.FD = fd
	r.byFD[fd] = ps
	return r.poller.Register(fd)
}

// ScheduleDelete tombstones the record.  The socket must close now, not at
// reap time: the kernel retransmits an unanswered SYN after about a second
// and a lingering socket would skew verdicts.
func (r *Registry) ScheduleDelete(ps *Probe) {
	r.releaseSocket(ps)
	ps.Deleted = true
}

func (r *Registry) releaseSocket(ps *Probe) {
	if ps.FD < 0 {
		return
	}
	r.poller.Unregister(ps.FD)
	delete(r.byFD, ps.FD)
	closeFD(ps.FD)
	ps.FD = -1
}

// Sort reorders the queue so the earliest-due record sits at the left end.
// Tombstoned records sort before all live records and can be reaped off the
// left without scanning; never-sent records take due key zero; ties break
// by creation order.
func (r *Registry) Sort(perHost time.Duration, now time.Time) {
	list := r.q.drain()
	key := func(ps *Probe) float64 {
		if ps.Deleted {
			return math.Inf(-1)
		}
		if ps.SentTime.IsZero() {
			return 0
		}
		return ps.SentTime.Add(perHost).Sub(now).Seconds()
	}
	sort.SliceStable(list, func(i, j int) bool {
		ki, kj := key(list[i]), key(list[j])
		if ki != kj {
			return ki < kj
		}
		return list[i].id < list[j].id
	})
	r.q.fill(list)
}

// CountInQueue reports how many records for the given probe index are
// queued.  Diagnostics only.
func (r *Registry) CountInQueue(probeIndex int) int {
	return r.perIndex[probeIndex]
}

// CloseAll releases every remaining socket.  Called when the scan
// finalizes so no descriptor outlives the registry.
func (r *Registry) CloseAll() {
	for i := 0; i < r.q.len(); i++ {
		ps := r.q.at(i)
		if ps.FD >= 0 {
			r.releaseSocket(ps)
		}
	}
}

// LiveSockets returns the number of descriptors currently watched
func (r *Registry) LiveSockets() int { return len(r.byFD) }
