package ports

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/ferret/pkg/config"
)

// rankIndex maps a port to its position in the popularity table.  Built
// lazily on first use; a port that appears more than once in the table keeps
// its last position.
var rankIndex map[uint16]int

const unranked = 100000

func buildRankIndex() {
	rankIndex = make(map[uint16]int, len(portPopularity))
	for i, p := range portPopularity {
		rankIndex[p] = i
	}
}

// Rank returns the rank of a single port, or a value sorting after all
// ranked ports if it does not appear in the popularity table.
func Rank(port uint16) int {
	if rankIndex == nil {
		buildRankIndex()
	}
	if r, ok := rankIndex[port]; ok {
		return r
	}
	return unranked
}

// Expand parses a port spec like "80,443,8080-9000" or "all" into the list
// of ports it names, in input order, duplicates preserved.
func Expand(spec string) ([]uint16, error) {
	if spec == "all" {
		spec = "1-65535"
	}
	var out []uint16
	for _, part := range strings.Split(spec, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.Split(part, "-")
			if len(bounds) != 2 {
				return nil, config.Errorf("port range %s is not in the right format", part)
			}
			lo, err := parsePort(bounds[0])
			if err != nil {
				return nil, err
			}
			hi, err := parsePort(bounds[1])
			if err != nil {
				return nil, err
			}
			for p := int(lo); p <= int(hi); p++ {
				out = append(out, uint16(p))
			}
		} else {
			p, err := parsePort(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 65535 {
		return 0, config.Errorf("port %s is not in range 1-65535", s)
	}
	return uint16(n), nil
}

// Order deduplicates the port list and sorts it so that ports in the
// popularity table come first in rank order, with unknown ports after them
// in numeric order.  Scanning in this order front-loads likely hits and
// makes progress reporting meaningful.
func Order(list []uint16) []uint16 {
	seen := make(map[uint16]bool, len(list))
	out := make([]uint16, 0, len(list))
	for _, p := range list {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := Rank(out[i]), Rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
