package scan

import (
	"fmt"
	"io"
	"strings"
)

const dumpWidth = 80

func printHeader(w io.Writer, message string) {
	padLeft := (dumpWidth - len(message) - 2) / 2
	padRight := dumpWidth - len(message) - 2 - padLeft
	fmt.Fprintf(w, "%s %s %s\n", strings.Repeat("=", padLeft), message, strings.Repeat("=", padRight))
}

func printFooter(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", dumpWidth))
}

func dumpLine(w io.Writer, label string, value interface{}) {
	dots := strings.Repeat(".", 28-len(label))
	fmt.Fprintf(w, "%s: %s %v\n", label, dots, value)
}

// Dump writes the boxed configuration summary shown before the scan
// starts.  Target counts are deliberately absent: printing them would
// drain an enumerator that may hold millions of targets.
func (s *Scanner) Dump(w io.Writer) {
	fmt.Fprintln(w)
	printHeader(w, "Starting Scan")
	if s.cfg.TargetsFile != "" {
		dumpLine(w, "Targets file", s.cfg.TargetsFile)
	}
	if len(s.cfg.Targets) > 0 {
		dumpLine(w, "Targets", strings.Join(s.cfg.Targets, ", "))
	}
	dumpLine(w, "Target ports", s.cfg.PortSpec)
	if s.softFdLimit > 0 {
		dumpLine(w, "Soft open files limit", s.softFdLimit)
		dumpLine(w, "Hard open files limit", s.hardFdLimit)
	}
	dumpLine(w, "Target port count", len(s.portList))
	dumpLine(w, "Retries", s.maxProbes-1)
	dumpLine(w, "Show closed ports", s.showClosed)
	dumpLine(w, "Bandwidth", s.cfg.Bandwidth+" bits/second")
	if s.cfg.PacketRate != "0" {
		dumpLine(w, "Packet rate", s.cfg.PacketRate+" packets/second")
	}
	dumpLine(w, "RTT", s.perHost)
	dumpLine(w, "Inter-packet interval", s.gov.InterPacketInterval())
	dumpLine(w, "Max sockets", s.highWater)
	dumpLine(w, "Packet overhead", fmt.Sprintf("%d bytes", packetOverhead))
	dumpLine(w, "Poll type", string(s.pol.Kind()))
	printFooter(w)
}
