//go:build linux

package scan

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ferret/pkg/config"
)

// recordingSink captures outcomes for assertions
type recordingSink struct {
	mu       sync.Mutex
	opens    []string
	closeds  []string
	warnings []string
}

func (r *recordingSink) OnOpen(ip netip.Addr, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens = append(r.opens, fmt.Sprintf("%s:%d", ip, port))
}

func (r *recordingSink) OnClosed(ip netip.Addr, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeds = append(r.closeds, fmt.Sprintf("%s:%d", ip, port))
}

func (r *recordingSink) OnWarning(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, text)
}

func listen(t *testing.T) (net.Listener, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln, uint16(ln.Addr().(*net.TCPAddr).Port)
}

// closedPort reserves a port and closes the listener so nothing is bound
func closedPort(t *testing.T) uint16 {
	t.Helper()
	ln, port := listen(t)
	ln.Close()
	return port
}

func baseConfig(portSpec string) config.Config {
	return config.Config{
		Targets:    []string{"127.0.0.1"},
		PortSpec:   portSpec,
		Bandwidth:  "1m",
		RTT:        0.1,
		Retries:    0,
		MaxSockets: "16",
	}
}

func TestScanOpenPort(t *testing.T) {
	_, port := listen(t)

	rec := &recordingSink{}
	s, err := New(baseConfig(fmt.Sprint(port)), rec)
	require.NoError(t, err)

	stats, err := s.Run()
	require.NoError(t, err)

	assert.Equal(t, []string{fmt.Sprintf("127.0.0.1:%d", port)}, rec.opens)
	assert.Empty(t, rec.closeds)
	assert.Equal(t, int64(1), stats.Replies)
	assert.Equal(t, int64(1), stats.HostCount)
	assert.GreaterOrEqual(t, stats.ProbesSent, int64(1))
}

func TestScanClosedPortHidden(t *testing.T) {
	port := closedPort(t)

	rec := &recordingSink{}
	s, err := New(baseConfig(fmt.Sprint(port)), rec)
	require.NoError(t, err)

	stats, err := s.Run()
	require.NoError(t, err)

	// RST observed and counted, but not reported without show-closed
	assert.Empty(t, rec.opens)
	assert.Empty(t, rec.closeds)
	assert.Equal(t, int64(0), stats.Replies)
	assert.Equal(t, int64(1), stats.Resets)
}

func TestScanClosedPortShown(t *testing.T) {
	port := closedPort(t)

	cfg := baseConfig(fmt.Sprint(port))
	cfg.ShowClosed = true
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	assert.Equal(t, []string{fmt.Sprintf("127.0.0.1:%d", port)}, rec.closeds)
}

func TestScanOnePortOneResult(t *testing.T) {
	_, open := listen(t)
	closed := closedPort(t)

	cfg := baseConfig(fmt.Sprintf("%d,%d", open, closed))
	cfg.ShowClosed = true
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	_, err = s.Run()
	require.NoError(t, err)

	// exactly one result line per port
	assert.Len(t, rec.opens, 1)
	assert.Len(t, rec.closeds, 1)
}

func TestScanBlocklist(t *testing.T) {
	_, port := listen(t)

	cfg := baseConfig(fmt.Sprint(port))
	cfg.Targets = []string{"127.0.0.1", "127.0.0.9"}
	cfg.Blocklist = []string{"127.0.0.9"}
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	stats, err := s.Run()
	require.NoError(t, err)

	require.Len(t, rec.warnings, 1)
	assert.Contains(t, rec.warnings[0], "127.0.0.9")
	assert.Contains(t, rec.warnings[0], "blocklist")
	assert.Equal(t, []string{fmt.Sprintf("127.0.0.1:%d", port)}, rec.opens)
	assert.Equal(t, int64(1), stats.HostCount)
}

func TestScanRetryBudgetTombstones(t *testing.T) {
	// loopback answers every probe at once, so a silent target cannot be
	// staged here.  This runs a three-probe retry budget against a closed
	// loopback port that answers RST and verifies that the scan terminates.
	cfg := config.Config{
		Targets:    []string{"127.0.0.1"},
		PortSpec:   fmt.Sprint(closedPort(t)),
		Bandwidth:  "1m",
		RTT:        0.2,
		Retries:    2,
		MaxSockets: "16",
	}
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	begin := time.Now()
	_, err = s.Run()
	require.NoError(t, err)

	// the RST arrives on the first probe and retires the record, so the
	// scan ends well inside two seconds
	assert.Less(t, time.Since(begin), 2*time.Second)
}

func TestScanInvalidTargetFailsMidStream(t *testing.T) {
	cfg := baseConfig("80")
	cfg.Targets = []string{"127.0.0.1", "not-an-ip"}
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	_, err = s.Run()
	require.Error(t, err)
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "both target sources", mutate: func(c *config.Config) { c.TargetsFile = "ips.txt" }},
		{name: "bad port spec", mutate: func(c *config.Config) { c.PortSpec = "http" }},
		{name: "bandwidth too low", mutate: func(c *config.Config) { c.Bandwidth = "0" }},
		{name: "bad blocklist entry", mutate: func(c *config.Config) { c.Blocklist = []string{"nope"} }},
		{name: "bad poller", mutate: func(c *config.Config) { c.Poller = "kqueue" }},
		{name: "bad max sockets", mutate: func(c *config.Config) { c.MaxSockets = "-3" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig("80")
			tt.mutate(&cfg)
			_, err := New(cfg, &recordingSink{})
			require.Error(t, err)
			var cfgErr *config.Error
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestSocketBudgetAuto(t *testing.T) {
	cfg := baseConfig("80")
	cfg.MaxSockets = "auto"
	cfg.Bandwidth = "59200" // 10ms inter-packet interval at 74B overhead
	cfg.RTT = 0.5
	s, err := New(cfg, &recordingSink{})
	require.NoError(t, err)

	// round(1.5 * 500ms / 10ms)
	assert.Equal(t, 75, s.highWater)
	assert.Equal(t, 67, s.lowWater)
}

func TestSocketBudgetExplicit(t *testing.T) {
	cfg := baseConfig("80")
	cfg.MaxSockets = "50"
	s, err := New(cfg, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, 50, s.highWater)
	assert.Equal(t, 45, s.lowWater)
}

func TestSocketBudgetSelectCap(t *testing.T) {
	cfg := baseConfig("80")
	cfg.Poller = "select"
	cfg.MaxSockets = "5000"
	s, err := New(cfg, &recordingSink{})
	require.NoError(t, err)

	// clamped to the select ceiling (and further to the fd soft limit on
	// tight environments)
	assert.LessOrEqual(t, s.highWater, 1021)
	assert.Greater(t, s.highWater, 0)
}

func TestLowRTTTightensRecvInterval(t *testing.T) {
	cfg := baseConfig("80")
	cfg.RTT = 0.1
	s, err := New(cfg, &recordingSink{})
	require.NoError(t, err)

	assert.Equal(t, 25*time.Millisecond, s.recvInterval)
}

func TestPerHostSpacing(t *testing.T) {
	_, port := listen(t)

	cfg := baseConfig(fmt.Sprint(port))
	cfg.RTT = 0.2
	rec := &recordingSink{}
	s, err := New(cfg, rec)
	require.NoError(t, err)

	stats, err := s.Run()
	require.NoError(t, err)

	// the reply lands well before the retry window, so exactly one probe
	// goes out per target
	assert.Equal(t, int64(1), stats.ProbesSent)
}
