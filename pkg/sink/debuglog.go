package sink

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"

	"github.com/cuemby/ferret/pkg/log"
)

// DefaultDebugLogPath is where -d writes observed replies
const DefaultDebugLogPath = "debug_reply_log.txt"

// replyTuple is one observed reply.  Tuples are held in memory and flushed
// at scan end; this is a test-harness feature, not a result store, so the
// memory cost is accepted and the feature stays off by default.
type replyTuple struct {
	probeName string
	ip        netip.Addr
	port      uint16
	payload   []byte
}

// DebugLog records (probe_name, ip, port, payload_hex) tuples for every
// observed reply and writes them as CSV when the scan finishes.
type DebugLog struct {
	Path   string
	tuples []replyTuple
}

// NewDebugLog creates a debug log writing to path (the default when empty)
func NewDebugLog(path string) *DebugLog {
	if path == "" {
		path = DefaultDebugLogPath
	}
	return &DebugLog{Path: path}
}

func (d *DebugLog) OnOpen(ip netip.Addr, port uint16) {
	d.tuples = append(d.tuples, replyTuple{probeName: "TCP Scan", ip: ip, port: port})
}

// OnClosed records nothing: the debug log captures replies with payloads,
// and an RST carries none that the harness cares about
func (d *DebugLog) OnClosed(ip netip.Addr, port uint16) {}

func (d *DebugLog) OnWarning(text string) {}

// Flush appends the accumulated tuples to the log file as CSV rows
func (d *DebugLog) Flush() error {
	f, err := os.OpenFile(d.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to write debug log: %w", err)
	}
	defer f.Close()
	for _, t := range d.tuples {
		fmt.Fprintf(f, "%s,%s,%d,%s\n", t.probeName, t.ip, t.port, hex.EncodeToString(t.payload))
	}
	logger := log.WithComponent("sink")
	logger.Info().Str("path", d.Path).Msg("Wrote debug log")
	return nil
}
