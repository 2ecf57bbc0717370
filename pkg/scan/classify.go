package scan

import (
	"github.com/cuemby/ferret/pkg/poller"
	"github.com/cuemby/ferret/pkg/types"
)

// classify turns a readiness event into a verdict.  The mask combinations
// that mean "open" and "closed" differ per backend:
//
//   - epoll registers EPOLLOUT|EPOLLRDHUP, so a reset raises the hangup
//     bit and a completed handshake arrives as plain writability
//   - poll reports both POLLHUP and POLLERR for a reset and neither for a
//     completed handshake
//   - select marks a reset socket readable and writable; a connecting
//     socket can never be readable without being writable, so
//     writable-only means open and the remaining combinations are noise
func classify(kind poller.Kind, mask poller.Mask) types.Verdict {
	switch kind {
	case poller.KindEpoll:
		if mask&poller.Hangup != 0 {
			return types.VerdictClosed
		}
		return types.VerdictOpen

	case poller.KindPoll:
		hup := mask&poller.Hangup != 0
		errBit := mask&poller.Err != 0
		switch {
		case hup && errBit:
			return types.VerdictClosed
		case !hup && !errBit:
			return types.VerdictOpen
		default:
			return types.VerdictUnexpected
		}

	default: // select
		readable := mask&poller.Readable != 0
		writable := mask&poller.Writable != 0
		switch {
		case readable && writable:
			return types.VerdictClosed
		case writable:
			return types.VerdictOpen
		default:
			return types.VerdictUnexpected
		}
	}
}
