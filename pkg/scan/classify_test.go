package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/ferret/pkg/poller"
	"github.com/cuemby/ferret/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		kind     poller.Kind
		mask     poller.Mask
		expected types.Verdict
	}{
		// epoll: the hangup-read bit is the reliable RST signal
		{name: "epoll rst", kind: poller.KindEpoll, mask: poller.Writable | poller.Hangup | poller.Err, expected: types.VerdictClosed},
		{name: "epoll rst hangup only", kind: poller.KindEpoll, mask: poller.Hangup, expected: types.VerdictClosed},
		{name: "epoll synack", kind: poller.KindEpoll, mask: poller.Writable, expected: types.VerdictOpen},

		// poll: hangup and error both asserted means RST, neither means
		// the handshake completed
		{name: "poll rst", kind: poller.KindPoll, mask: poller.Hangup | poller.Err, expected: types.VerdictClosed},
		{name: "poll rst with writable", kind: poller.KindPoll, mask: poller.Writable | poller.Hangup | poller.Err, expected: types.VerdictClosed},
		{name: "poll synack", kind: poller.KindPoll, mask: poller.Writable, expected: types.VerdictOpen},
		{name: "poll hangup only", kind: poller.KindPoll, mask: poller.Hangup, expected: types.VerdictUnexpected},
		{name: "poll error only", kind: poller.KindPoll, mask: poller.Err | poller.Writable, expected: types.VerdictUnexpected},

		// select: readable-and-writable is an RST; a connecting socket
		// can never be readable without being writable
		{name: "select rst", kind: poller.KindSelect, mask: poller.Readable | poller.Writable, expected: types.VerdictClosed},
		{name: "select synack", kind: poller.KindSelect, mask: poller.Writable, expected: types.VerdictOpen},
		{name: "select readable only", kind: poller.KindSelect, mask: poller.Readable, expected: types.VerdictUnexpected},
		{name: "select error only", kind: poller.KindSelect, mask: poller.Err, expected: types.VerdictUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.kind, tt.mask))
		})
	}
}
