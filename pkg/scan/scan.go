package scan

import (
	"fmt"
	"net/netip"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/ferret/pkg/config"
	"github.com/cuemby/ferret/pkg/log"
	"github.com/cuemby/ferret/pkg/metrics"
	"github.com/cuemby/ferret/pkg/poller"
	"github.com/cuemby/ferret/pkg/ports"
	"github.com/cuemby/ferret/pkg/rate"
	"github.com/cuemby/ferret/pkg/registry"
	"github.com/cuemby/ferret/pkg/sink"
	"github.com/cuemby/ferret/pkg/targets"
	"github.com/cuemby/ferret/pkg/types"
)

// defaultRecvInterval is how often the drain phase must run even under
// pacing pressure.
const defaultRecvInterval = 100 * time.Millisecond

// Scanner drives one scan: it refills the probe registry from the
// enumerator, paces sends through the governor, issues non-blocking
// connects, and classifies readiness events into verdicts.  All state is
// owned by the goroutine calling Run.
type Scanner struct {
	ScanID string

	cfg    config.Config
	logger zerolog.Logger

	reg  *registry.Registry
	pol  poller.Poller
	gov  *rate.Governor
	enum *targets.Enumerator
	snk  sink.Sink

	portList     []uint16
	maxProbes    int
	perHost      time.Duration
	recvInterval time.Duration
	showClosed   bool
	highWater    int
	lowWater     int
	blocklist    map[netip.Addr]bool

	softFdLimit uint64
	hardFdLimit uint64

	moreHosts    bool
	hostCount    int64
	highestIndex int
	replies      int64
	pollResults  int64
	tombstoned   int64
	startTime    time.Time
	lastSend     time.Time
	nextRecv     time.Time

	warnedUnreachable map[netip.Addr]bool
	warnedBlocked     map[netip.Addr]bool
	warnedMasks       map[poller.Mask]bool
}

// New resolves the config into a ready-to-run scanner.  Returned
// *config.Error values are user errors; everything else is a crash.
func New(cfg config.Config, snk sink.Sink) (*Scanner, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		ScanID:            uuid.New().String(),
		cfg:               cfg,
		snk:               snk,
		maxProbes:         cfg.Retries + 1,
		perHost:           cfg.PerHostInterval(),
		recvInterval:      defaultRecvInterval,
		moreHosts:         true,
		blocklist:         make(map[netip.Addr]bool),
		warnedUnreachable: make(map[netip.Addr]bool),
		warnedBlocked:     make(map[netip.Addr]bool),
		warnedMasks:       make(map[poller.Mask]bool),
	}
	s.logger = log.WithScanID(s.ScanID).With().Str("component", "scan").Logger()

	// port set
	list, err := ports.Expand(cfg.PortSpec)
	if err != nil {
		return nil, err
	}
	s.portList = ports.Order(list)
	if len(s.portList) == 0 {
		return nil, config.Errorf("no ports to scan")
	}

	// rate budgets
	bandwidth, err := config.ExpandNumber(cfg.Bandwidth)
	if err != nil {
		return nil, err
	}
	if bandwidth < 1 {
		return nil, config.Errorf("bandwidth %d is too low", bandwidth)
	}
	if bandwidth > 1000000 {
		s.logger.Warn().Int64("bandwidth", bandwidth).Msg("Bandwidth is high, continuing anyway")
	}
	packetRate, err := config.ExpandNumber(cfg.PacketRate)
	if err != nil {
		return nil, err
	}

	// A low RTT needs a tighter receive window or small scans miss
	// replies: they recv right after sending, then sleep past the answer.
	if s.perHost < 4*s.recvInterval {
		s.recvInterval = s.perHost / 4
		s.logger.Warn().
			Dur("rtt", s.perHost).
			Dur("recv_interval", s.recvInterval).
			Msg("RTT is low, tightening receive interval; this costs extra CPU")
	}

	s.gov = rate.NewGovernor(rate.Config{
		BandwidthBps:    bandwidth,
		PacketRate:      packetRate,
		PerHostInterval: s.perHost,
		Overhead:        packetOverhead,
		RecvInterval:    s.recvInterval,
	})

	// blocklist
	for _, ip := range cfg.Blocklist {
		a, perr := netip.ParseAddr(ip)
		if perr != nil || !a.Is4() {
			return nil, config.Errorf("invalid IP address in blocklist: %s", ip)
		}
		s.blocklist[a] = true
	}

	// windows cannot observe RST on a non-blocking connect
	s.showClosed = cfg.ShowClosed
	if runtime.GOOS == "windows" && s.showClosed {
		s.logger.Warn().Msg("Windows does not support detecting closed ports, ignoring show-closed")
		s.showClosed = false
	}

	// readiness backend
	s.pol, err = poller.New(poller.Kind(cfg.Poller))
	if err != nil {
		return nil, config.Errorf("%s", err)
	}
	s.reg = registry.New(s.pol)

	if err := s.sizeSocketBudget(); err != nil {
		return nil, err
	}

	// target stream
	var factory targets.Factory
	if cfg.TargetsFile != "" {
		factory = targets.FromFile(cfg.TargetsFile)
	} else {
		factory = targets.FromList(cfg.Targets)
	}
	s.enum = targets.NewEnumerator(factory, s.portList)

	return s, nil
}

// Run executes the scan to completion and returns its statistics
func (s *Scanner) Run() (types.ScanStats, error) {
	s.startTime = time.Now()
	s.nextRecv = s.startTime
	s.gov.Start(s.startTime)

	running := true
	for running {
		if err := s.fill(); err != nil {
			s.shutdown()
			return types.ScanStats{}, err
		}

		s.gov.WaitForQuotas(s.reg, func() {
			// receive pass during a pacing sleep; a poller failure here
			// surfaces again on the next gated drain
			_, _ = s.drain()
		})

		if err := s.send(); err != nil {
			s.shutdown()
			return types.ScanStats{}, err
		}

		if now := time.Now(); now.After(s.nextRecv) {
			s.nextRecv = now.Add(s.recvInterval)
			live, err := s.drain()
			if err != nil {
				s.shutdown()
				return types.ScanStats{}, err
			}
			running = live || s.moreHosts
		}
	}

	// final drain so late replies arriving inside the last interval are
	// still classified
	if _, err := s.drain(); err != nil {
		s.shutdown()
		return types.ScanStats{}, err
	}
	s.shutdown()

	return s.stats(), nil
}

func (s *Scanner) shutdown() {
	s.reg.CloseAll()
	s.pol.Close()
}

// fill pulls targets from the enumerator until the registry reaches the
// high-water mark, then reorders the queue by due time.
func (s *Scanner) fill() error {
	if !s.moreHosts || s.reg.Len() >= s.lowWater {
		return nil
	}
	s.moreHosts = false
	for {
		t, ok, err := s.enum.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if s.blocklist[t.Addr] {
			metrics.BlocklistSkips.Inc()
			if !s.warnedBlocked[t.Addr] {
				s.warnedBlocked[t.Addr] = true
				s.snk.OnWarning(fmt.Sprintf("Skipping target %s because it is in the blocklist", t.Addr))
			}
			continue
		}

		if t.ProbeIndex == 0 {
			s.hostCount++
			metrics.HostsEnumerated.Inc()
		}
		if t.ProbeIndex > s.highestIndex {
			s.highestIndex = t.ProbeIndex
			s.logger.Debug().
				Uint16("port", t.Port).
				Int("probe_index", t.ProbeIndex).
				Msg("Starting next port")
		}

		s.reg.Add(t)
		metrics.QueuedByProbeIndex.WithLabelValues(fmt.Sprint(t.ProbeIndex)).Inc()

		if s.reg.Len() >= s.highWater {
			s.moreHosts = true
			break
		}
	}
	s.reg.Sort(s.perHost, time.Now())
	metrics.RegistryPopulation.Set(float64(s.reg.Len()))
	return nil
}

// send issues up to the permitted number of probes off the left end of the
// queue.  The queue is sorted by due time, so the first record that cannot
// be sent ends the loop.
func (s *Scanner) send() error {
	n := s.gov.Available(time.Now())
	if l := s.reg.Len(); l < n {
		n = l
	}

	for i := 0; i < n; i++ {
		if s.reg.Len() == 0 {
			break
		}
		now := time.Now()
		ps := s.reg.PeekLeft()

		// retry budget spent and the last interval elapsed: the record
		// is done, unreported (filtered)
		if !ps.Deleted && ps.SentCount >= s.maxProbes && now.After(ps.SentTime.Add(s.perHost)) {
			s.reg.ScheduleDelete(ps)
			metrics.Replies.WithLabelValues(string(types.VerdictFiltered)).Inc()
		}

		// reap tombstones off the left end
		if ps.Deleted {
			s.reg.PopLeft()
			metrics.QueuedByProbeIndex.WithLabelValues(fmt.Sprint(ps.Target.ProbeIndex)).Dec()
			continue
		}

		// waiting on a retry window; the queue is sorted, so nothing to
		// the right can be readier
		if ps.SentCount >= s.maxProbes {
			break
		}
		if !ps.SentTime.IsZero() && ps.SentTime.Add(s.perHost).After(now) {
			break
		}

		if err := s.sendProbe(ps, now); err != nil {
			return err
		}
		s.reg.RotateLeftToRight()
	}
	metrics.RegistryPopulation.Set(float64(s.reg.Len()))
	return nil
}

func (s *Scanner) sendProbe(ps *registry.Probe, now time.Time) error {
	fd, err := dialNonblock(ps.Target.Addr, ps.Target.Port)
	switch {
	case err == nil:
	case err == errUnreachable:
		// normal for broadcast addresses; the socket exists but no
		// handshake is in flight, so the record ages out through retries
		if !s.warnedUnreachable[ps.Target.Addr] {
			s.warnedUnreachable[ps.Target.Addr] = true
			s.snk.OnWarning(fmt.Sprintf(
				"Failed to connect to %s:%d: network is unreachable (probably broadcast address), suppressing further warnings for this host",
				ps.Target.Addr, ps.Target.Port))
		}
	case err == ErrFdExhausted:
		return ErrFdExhausted
	default:
		return err
	}

	if err := s.reg.Attach(ps, fd); err != nil {
		return err
	}
	ps.SentCount++
	ps.SentTime = now
	s.lastSend = now
	s.gov.AccountSend()
	return nil
}

// drain polls with zero timeout and classifies every readiness event.  It
// reports whether any records remain queued.
func (s *Scanner) drain() (bool, error) {
	if s.reg.LiveSockets() > 0 {
		events, err := s.pol.Wait(0)
		if err != nil {
			return false, fmt.Errorf("poller failure: %w", err)
		}
		for _, ev := range events {
			s.pollResults++
			metrics.PollEvents.Inc()

			ps := s.reg.Lookup(ev.FD)
			if ps == nil {
				return false, fmt.Errorf("monitored socket %d does not appear in the registry", ev.FD)
			}
			if ps.Deleted {
				s.tombstoned++
				metrics.PollEventsTombstoned.Inc()
				continue
			}

			verdict := classify(s.pol.Kind(), ev.Mask)
			metrics.Replies.WithLabelValues(string(verdict)).Inc()
			switch verdict {
			case types.VerdictOpen:
				s.replies++
				s.snk.OnOpen(ps.Target.Addr, ps.Target.Port)
			case types.VerdictClosed:
				if s.showClosed {
					s.snk.OnClosed(ps.Target.Addr, ps.Target.Port)
				}
			default:
				if !s.warnedMasks[ev.Mask] {
					s.warnedMasks[ev.Mask] = true
					s.snk.OnWarning(fmt.Sprintf(
						"Socket found with unexpected event %s, suppressing warnings about events of the same type", ev.Mask))
				}
			}

			// one result per record: the tombstone closes the socket now
			// and the sort gate reaps the record later
			s.reg.ScheduleDelete(ps)
		}
	}
	return s.reg.Len() > 0, nil
}

func (s *Scanner) stats() types.ScanStats {
	duration := s.lastSend.Sub(s.startTime)
	if duration <= 0 {
		// quick scans on fast clocks can finish inside one tick
		duration = time.Millisecond
	}
	bytesSent := s.gov.BytesSent()
	return types.ScanStats{
		BytesSent:    bytesSent,
		ProbesSent:   s.gov.PacketsSent(),
		Replies:      s.replies,
		Resets:       s.pollResults - s.replies,
		HostCount:    s.hostCount,
		Duration:     duration,
		RateBitsPerS: int64(8 * float64(bytesSent) / duration.Seconds()),
		SleepTotal:   s.gov.SleepTotal(),
	}
}
