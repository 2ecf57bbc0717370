package registry

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ferret/pkg/poller"
	"github.com/cuemby/ferret/pkg/types"
)

// fakePoller records registrations so the tests can assert the watch-set
// invariants without touching the kernel
type fakePoller struct {
	watched map[int]bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{watched: make(map[int]bool)}
}

func (f *fakePoller) Register(fd int) error {
	f.watched[fd] = true
	return nil
}

func (f *fakePoller) Unregister(fd int) error {
	delete(f.watched, fd)
	return nil
}

func (f *fakePoller) Wait(timeout time.Duration) ([]poller.Event, error) { return nil, nil }
func (f *fakePoller) Kind() poller.Kind                                  { return poller.KindPoll }
func (f *fakePoller) Cap() int                                           { return 0 }
func (f *fakePoller) Close() error                                       { return nil }

func target(ip string, port uint16, index int) types.Target {
	return types.Target{Addr: netip.MustParseAddr(ip), Port: port, ProbeIndex: index}
}

func TestAddPushesFront(t *testing.T) {
	r := New(newFakePoller())
	first := r.Add(target("10.0.0.1", 80, 0))
	second := r.Add(target("10.0.0.2", 80, 0))

	assert.Equal(t, 2, r.Len())
	assert.Same(t, second, r.PeekLeft())
	_ = first
}

func TestProbeIDsIncrease(t *testing.T) {
	r := New(newFakePoller())
	a := r.Add(target("10.0.0.1", 80, 0))
	b := r.Add(target("10.0.0.2", 80, 0))
	assert.Less(t, a.id, b.id)
}

func TestPopRight(t *testing.T) {
	r := New(newFakePoller())
	a := r.Add(target("10.0.0.1", 80, 0))
	b := r.Add(target("10.0.0.2", 80, 0))

	// queue is [b, a]
	assert.Same(t, a, r.PopRight())
	assert.Same(t, b, r.PopRight())
	assert.Nil(t, r.PopRight())
}

func TestRotateLeftToRight(t *testing.T) {
	r := New(newFakePoller())
	a := r.Add(target("10.0.0.1", 80, 0))
	b := r.Add(target("10.0.0.2", 80, 0))

	// queue is [b, a]; rotating moves b to the right end
	moved := r.RotateLeftToRight()
	assert.Same(t, b, moved)
	assert.Same(t, a, r.PeekLeft())
	assert.Equal(t, 2, r.Len())
}

func TestAttachMaintainsIndexAndWatchSet(t *testing.T) {
	fp := newFakePoller()
	r := New(fp)
	ps := r.Add(target("10.0.0.1", 80, 0))

	require.NoError(t, r.Attach(ps, 42))
	assert.Same(t, ps, r.Lookup(42))
	assert.True(t, fp.watched[42])
	assert.Equal(t, 1, r.LiveSockets())

	// attaching a replacement socket releases the old descriptor
	require.NoError(t, r.Attach(ps, 43))
	assert.Nil(t, r.Lookup(42))
	assert.Same(t, ps, r.Lookup(43))
	assert.False(t, fp.watched[42])
	assert.True(t, fp.watched[43])
	assert.Equal(t, 1, r.LiveSockets())
}

func TestScheduleDelete(t *testing.T) {
	fp := newFakePoller()
	r := New(fp)
	ps := r.Add(target("10.0.0.1", 80, 0))
	require.NoError(t, r.Attach(ps, 42))

	r.ScheduleDelete(ps)

	// tombstoned: no socket, no watch registration, still queued
	assert.True(t, ps.Deleted)
	assert.Equal(t, -1, ps.FD)
	assert.Nil(t, r.Lookup(42))
	assert.False(t, fp.watched[42])
	assert.Equal(t, 1, r.Len())
}

func TestSortEarliestDueFirst(t *testing.T) {
	r := New(newFakePoller())
	now := time.Now()
	perHost := 500 * time.Millisecond

	late := r.Add(target("10.0.0.1", 80, 0))
	late.SentTime = now.Add(-100 * time.Millisecond)
	late.SentCount = 1

	early := r.Add(target("10.0.0.2", 80, 0))
	early.SentTime = now.Add(-400 * time.Millisecond)
	early.SentCount = 1

	r.Sort(perHost, now)

	// early is due in 100ms, late in 400ms
	assert.Same(t, early, r.PopLeft())
	assert.Same(t, late, r.PopLeft())
}

func TestSortNeverSentTakesKeyZero(t *testing.T) {
	r := New(newFakePoller())
	now := time.Now()
	perHost := 500 * time.Millisecond

	overdue := r.Add(target("10.0.0.1", 80, 0))
	overdue.SentTime = now.Add(-time.Second)
	overdue.SentCount = 1

	fresh := r.Add(target("10.0.0.2", 80, 0))

	r.Sort(perHost, now)

	// the overdue record's key is negative, the fresh record's zero
	assert.Same(t, overdue, r.PopLeft())
	assert.Same(t, fresh, r.PopLeft())
}

func TestSortTombstonesFirst(t *testing.T) {
	r := New(newFakePoller())
	now := time.Now()

	dead := r.Add(target("10.0.0.1", 80, 0))
	dead.SentTime = now
	dead.SentCount = 1
	r.ScheduleDelete(dead)

	live := r.Add(target("10.0.0.2", 80, 0))

	r.Sort(500*time.Millisecond, now)

	// tombstones sort before all live records so reaping needs no scan
	assert.Same(t, dead, r.PopLeft())
	assert.Same(t, live, r.PopLeft())
}

func TestSortStableTiesByCreation(t *testing.T) {
	r := New(newFakePoller())
	a := r.Add(target("10.0.0.1", 80, 0))
	b := r.Add(target("10.0.0.2", 80, 0))
	c := r.Add(target("10.0.0.3", 80, 0))

	r.Sort(500*time.Millisecond, time.Now())

	assert.Same(t, a, r.PopLeft())
	assert.Same(t, b, r.PopLeft())
	assert.Same(t, c, r.PopLeft())
}

func TestCountInQueue(t *testing.T) {
	r := New(newFakePoller())
	r.Add(target("10.0.0.1", 80, 0))
	r.Add(target("10.0.0.2", 80, 0))
	r.Add(target("10.0.0.1", 443, 1))

	assert.Equal(t, 2, r.CountInQueue(0))
	assert.Equal(t, 1, r.CountInQueue(1))

	r.PopLeft() // removes the 443 record, pushed front last
	assert.Equal(t, 0, r.CountInQueue(1))
}

func TestDequeGrowth(t *testing.T) {
	r := New(newFakePoller())
	var all []*Probe
	for i := 0; i < 200; i++ {
		all = append(all, r.Add(target("10.0.0.1", uint16(i+1), 0)))
	}
	require.Equal(t, 200, r.Len())

	// records come back in reverse creation order (each Add pushed front)
	for i := 199; i >= 0; i-- {
		assert.Same(t, all[i], r.PopLeft())
	}
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.PopLeft())
}
