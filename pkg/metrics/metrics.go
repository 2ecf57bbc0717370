package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Send-path metrics
	ProbesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_probes_sent_total",
			Help: "Total number of connect probes initiated",
		},
	)

	BytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_bytes_sent_total",
			Help: "Estimated bytes put on the wire, packet overhead included",
		},
	)

	// Drain metrics
	Replies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferret_replies_total",
			Help: "Total classified readiness events by verdict",
		},
		[]string{"verdict"},
	)

	PollEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_poll_events_total",
			Help: "Total readiness events returned by the poller",
		},
	)

	PollEventsTombstoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_poll_events_tombstoned_total",
			Help: "Readiness events that landed on already tombstoned records",
		},
	)

	// Pacing metrics
	SleepWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferret_sleep_waits_total",
			Help: "Pacing sleeps by the quota that forced them",
		},
		[]string{"reason"},
	)

	// Registry metrics
	RegistryPopulation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ferret_registry_population",
			Help: "Probe records currently queued, tombstones included",
		},
	)

	QueuedByProbeIndex = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ferret_registry_queued_by_probe_index",
			Help: "Probe records queued per port ordinal (diagnostics only)",
		},
		[]string{"probe_index"},
	)

	// Enumeration metrics
	HostsEnumerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_hosts_enumerated_total",
			Help: "Distinct hosts pulled from the target enumerator",
		},
	)

	BlocklistSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ferret_blocklist_skips_total",
			Help: "Targets skipped because their IP is block-listed",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ProbesSent,
		BytesSent,
		Replies,
		PollEvents,
		PollEventsTombstoned,
		SleepWaits,
		RegistryPopulation,
		QueuedByProbeIndex,
		HostsEnumerated,
		BlocklistSkips,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed time for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer creates a timer starting now
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed seconds into the histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
