package sink

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/cuemby/ferret/pkg/log"
)

// Sink receives classified probe outcomes.  Implementations must be safe
// for use from the single scan goroutine; reentrancy is only needed if a
// caller runs multiple scans over one sink.
type Sink interface {
	// OnOpen reports a SYN/ACK from ip:port
	OnOpen(ip netip.Addr, port uint16)

	// OnClosed reports an RST from ip:port
	OnClosed(ip netip.Addr, port uint16)

	// OnWarning reports a recoverable scan anomaly
	OnWarning(text string)
}

// Console writes result lines to w in the scanner's canonical format
type Console struct {
	W io.Writer
}

// NewConsole creates a console sink
func NewConsole(w io.Writer) *Console {
	return &Console{W: w}
}

func (c *Console) OnOpen(ip netip.Addr, port uint16) {
	fmt.Fprintf(c.W, "Received SYN/ACK for %s:%d\n", ip, port)
}

func (c *Console) OnClosed(ip netip.Addr, port uint16) {
	fmt.Fprintf(c.W, "Received RST for %s:%d\n", ip, port)
}

func (c *Console) OnWarning(text string) {
	logger := log.WithComponent("sink")
	logger.Warn().Msg(text)
}

// Multi fans outcomes out to several sinks in order
type Multi []Sink

func (m Multi) OnOpen(ip netip.Addr, port uint16) {
	for _, s := range m {
		s.OnOpen(ip, port)
	}
}

func (m Multi) OnClosed(ip netip.Addr, port uint16) {
	for _, s := range m {
		s.OnClosed(ip, port)
	}
}

func (m Multi) OnWarning(text string) {
	for _, s := range m {
		s.OnWarning(text)
	}
}
