package targets

import (
	"bufio"
	"encoding/binary"
	"net/netip"
	"os"
	"strings"

	"github.com/cuemby/ferret/pkg/config"
	"github.com/cuemby/ferret/pkg/types"
)

// Source is a lazy, non-restartable sequence of IPv4 addresses.  Next
// returns ok=false once the sequence is exhausted.  Sources stream: the
// total target cardinality may exceed available memory.
type Source interface {
	Next() (netip.Addr, bool, error)
}

// Factory builds a fresh Source.  The enumerator walks the full host set
// once per port (column-major order), so it needs to restart the sequence.
type Factory func() (Source, error)

func addrToU32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func u32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// rangeSource iterates an inclusive 32-bit address range.  An inverted
// range (end < start) is empty rather than an error, matching the dashed
// range contract.
type rangeSource struct {
	next, end uint32
	done      bool
}

func (r *rangeSource) Next() (netip.Addr, bool, error) {
	if r.done || r.next > r.end {
		return netip.Addr{}, false, nil
	}
	a := u32ToAddr(r.next)
	if r.next == r.end {
		r.done = true // avoid wrap on 255.255.255.255
	} else {
		r.next++
	}
	return a, true, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Addr{}, config.Errorf("%s is not a valid ip, ip range or cidr", s)
	}
	return a, nil
}

// parseToken turns one textual target into a Source.  Accepted forms:
// dotted quad, dashed inclusive range A.B.C.D-E.F.G.H, and CIDR A.B.C.D/N
// with 8 <= N <= 32 (network and broadcast addresses included).
func parseToken(token string) (Source, error) {
	switch {
	case strings.Contains(token, "/"):
		prefix, err := netip.ParsePrefix(token)
		if err != nil || !prefix.Addr().Is4() {
			return nil, config.Errorf("%s is not a valid ip, ip range or cidr", token)
		}
		bits := prefix.Bits()
		if bits > 32 {
			return nil, config.Errorf("netmask for %s is > 32", token)
		}
		if bits < 8 {
			return nil, config.Errorf("netmask for %s is < 8", token)
		}
		mask := uint32(0xffffffff)
		if bits < 32 {
			mask <<= uint(32 - bits)
		}
		network := addrToU32(prefix.Addr()) & mask
		broadcast := network | ^mask
		return &rangeSource{next: network, end: broadcast}, nil

	case strings.Contains(token, "-"):
		parts := strings.SplitN(token, "-", 2)
		start, err := parseIPv4(parts[0])
		if err != nil {
			return nil, err
		}
		end, err := parseIPv4(parts[1])
		if err != nil {
			return nil, err
		}
		return &rangeSource{next: addrToU32(start), end: addrToU32(end)}, nil

	default:
		a, err := parseIPv4(token)
		if err != nil {
			return nil, err
		}
		return &rangeSource{next: addrToU32(a), end: addrToU32(a)}, nil
	}
}

// listSource walks a list of target tokens, expanding each in turn.
// Tokens are parsed lazily so a bad token after millions of good targets
// fails in the same place it would when read from a file.
type listSource struct {
	tokens []string
	cur    Source
}

func (l *listSource) Next() (netip.Addr, bool, error) {
	for {
		if l.cur == nil {
			if len(l.tokens) == 0 {
				return netip.Addr{}, false, nil
			}
			src, err := parseToken(l.tokens[0])
			if err != nil {
				return netip.Addr{}, false, err
			}
			l.tokens = l.tokens[1:]
			l.cur = src
		}
		a, ok, err := l.cur.Next()
		if err != nil {
			return netip.Addr{}, false, err
		}
		if ok {
			return a, true, nil
		}
		l.cur = nil
	}
}

// fileSource reads one target token per line.  Lines starting with #,
// empty lines and whitespace-only lines are skipped.
type fileSource struct {
	f       *os.File
	scanner *bufio.Scanner
	cur     Source
}

func (s *fileSource) Next() (netip.Addr, bool, error) {
	for {
		if s.cur != nil {
			a, ok, err := s.cur.Next()
			if err != nil {
				return netip.Addr{}, false, err
			}
			if ok {
				return a, true, nil
			}
			s.cur = nil
		}
		if !s.scanner.Scan() {
			err := s.scanner.Err()
			s.f.Close()
			return netip.Addr{}, false, err
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		src, err := parseToken(line)
		if err != nil {
			return netip.Addr{}, false, err
		}
		s.cur = src
	}
}

// FromList returns a Factory over positional target tokens
func FromList(tokens []string) Factory {
	return func() (Source, error) {
		return &listSource{tokens: tokens}, nil
	}
}

// FromFile returns a Factory that streams tokens from a file.  The file is
// re-opened on every restart, so it is read once per configured port.
func FromFile(path string) Factory {
	return func() (Source, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, config.Errorf("file %s does not exist", path)
		}
		return &fileSource{f: f, scanner: bufio.NewScanner(f)}, nil
	}
}

// Enumerator composes a host Factory with the ordered port list, yielding
// (ip, port, probeIndex) triples.  For each probe index the full host set
// is enumerated before advancing to the next port, so early (popular) ports
// are swept across every host first.
type Enumerator struct {
	factory    Factory
	ports      []uint16
	probeIndex int
	hosts      Source
}

// NewEnumerator creates an Enumerator over the given hosts and ports
func NewEnumerator(factory Factory, ports []uint16) *Enumerator {
	return &Enumerator{factory: factory, ports: ports}
}

// Next returns the next target, or ok=false when the sequence is exhausted
func (e *Enumerator) Next() (types.Target, bool, error) {
	for {
		if e.probeIndex >= len(e.ports) {
			return types.Target{}, false, nil
		}
		if e.hosts == nil {
			src, err := e.factory()
			if err != nil {
				return types.Target{}, false, err
			}
			e.hosts = src
		}
		addr, ok, err := e.hosts.Next()
		if err != nil {
			return types.Target{}, false, err
		}
		if ok {
			return types.Target{
				Addr:       addr,
				Port:       e.ports[e.probeIndex],
				ProbeIndex: e.probeIndex,
			}, true, nil
		}
		e.hosts = nil
		e.probeIndex++
	}
}
