package scan

import (
	"math"
	"strconv"

	"github.com/cuemby/ferret/pkg/config"
)

// maxSocksMultiplier converts the per-host interval into a socket budget.
// Tuned against a 65k-port localhost scan: enough in-flight sockets to
// saturate the send loop without holding any socket past the roughly one
// second window after which the kernel starts retransmitting the SYN.
const maxSocksMultiplier = 1.5

// softLimitHeadroom keeps a few descriptors free for stdio and the poller
const softLimitHeadroom = 10

// suggestedHighWater is the socket budget that keeps the send loop
// saturated for the configured pacing.
func (s *Scanner) suggestedHighWater() int {
	ipi := s.gov.InterPacketInterval()
	if ipi <= 0 {
		return math.MaxInt32
	}
	return int(math.Round(maxSocksMultiplier * float64(s.perHost) / float64(ipi)))
}

// sizeSocketBudget resolves the max-sockets setting, clamping it to the
// poller's ceiling and the process open-file limit, and warns when the
// chosen value will scan slowly or provoke OS retransmissions.
func (s *Scanner) sizeSocketBudget() error {
	suggestion := s.suggestedHighWater()

	if s.cfg.MaxSockets == "auto" {
		s.highWater = suggestion
	} else {
		n, err := strconv.Atoi(s.cfg.MaxSockets)
		if err != nil || n < 1 {
			return config.Errorf("max sockets must be > 0 or \"auto\"")
		}
		s.highWater = n
	}

	if ceiling := s.pol.Cap(); ceiling > 0 && s.highWater > ceiling {
		s.logger.Warn().
			Int("max_sockets", s.highWater).
			Int("cap", ceiling).
			Str("poller", string(s.pol.Kind())).
			Msg("Poll type does not work for this many sockets, reducing max sockets")
		s.highWater = ceiling
	}

	if soft, hard, ok := fdLimit(); ok {
		s.softFdLimit, s.hardFdLimit = soft, hard
		if uint64(s.highWater) > soft {
			s.logger.Warn().
				Int("max_sockets", s.highWater).
				Uint64("soft_limit", soft).
				Uint64("hard_limit", hard).
				Msgf("max sockets must be <= ulimit -n, reducing to %d; raise the soft limit with 'ulimit -n NNNN'", soft-softLimitHeadroom)
			s.highWater = int(soft) - softLimitHeadroom
		}
	}

	if float64(s.highWater) > float64(suggestion)*1.1 {
		s.logger.Warn().
			Int("max_sockets", s.highWater).
			Int("suggested", suggestion).
			Msg("max sockets is above the suggested value, you may send unwanted retries")
	}
	if float64(s.highWater) < float64(suggestion)*0.7 {
		s.logger.Warn().
			Int("max_sockets", s.highWater).
			Int("suggested", suggestion).
			Msg("max sockets is below the suggested value, scan may be slow")
		if s.perHost > defaultRecvInterval {
			s.logger.Info().Msg("If you have a low-latency connection, try -R 0.1")
		}
		if s.maxProbes > 1 {
			s.logger.Info().Msg("If you don't get packet loss, try -r 0")
		}
	}

	s.lowWater = int(0.9 * float64(s.highWater))
	return nil
}
