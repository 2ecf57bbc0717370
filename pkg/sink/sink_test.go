package sink

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.OnOpen(netip.MustParseAddr("10.0.0.1"), 22)
	c.OnClosed(netip.MustParseAddr("10.0.0.2"), 80)

	assert.Equal(t,
		"Received SYN/ACK for 10.0.0.1:22\nReceived RST for 10.0.0.2:80\n",
		buf.String())
}

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewConsole(&a), NewConsole(&b)}

	m.OnOpen(netip.MustParseAddr("10.0.0.1"), 443)

	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "10.0.0.1:443")
}

func TestDebugLogFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replies.txt")
	d := NewDebugLog(path)

	d.OnOpen(netip.MustParseAddr("10.0.0.1"), 22)
	d.OnOpen(netip.MustParseAddr("10.0.0.2"), 443)
	d.OnClosed(netip.MustParseAddr("10.0.0.3"), 80) // not recorded

	require.NoError(t, d.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"TCP Scan,10.0.0.1,22,\nTCP Scan,10.0.0.2,443,\n",
		string(data))
}

func TestDebugLogDefaultPath(t *testing.T) {
	d := NewDebugLog("")
	assert.Equal(t, DefaultDebugLogPath, d.Path)
}

func TestBrokerDelivers(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.OnOpen(netip.MustParseAddr("10.0.0.1"), 22)
	b.OnWarning("something odd")

	ev := <-sub
	assert.Equal(t, EventPortOpen, ev.Type)
	assert.Equal(t, "10.0.0.1", ev.Addr.String())
	assert.Equal(t, uint16(22), ev.Port)
	assert.False(t, ev.Timestamp.IsZero())

	ev = <-sub
	assert.Equal(t, EventWarning, ev.Type)
	assert.Equal(t, "something odd", ev.Message)
}

func TestBrokerSubscriberCount(t *testing.T) {
	b := NewBroker()
	assert.Equal(t, 0, b.SubscriberCount())

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBrokerFullSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	// overflow the subscriber buffer; publishes must not block
	for i := 0; i < 200; i++ {
		b.OnOpen(netip.MustParseAddr("10.0.0.1"), uint16(i+1))
	}
	assert.Equal(t, 50, len(sub))
}
