package mdns

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// incomingPacket is what fakeConn.Receive replays, including the
// simulated arrival interface a real UDPConnection would read out of
// an IP_PKTINFO control message.
type incomingPacket struct {
	data    []byte
	ifIndex int
}

// fakeConn is an in-memory Connection double so Advertiser tests
// never open a real multicast socket.
type fakeConn struct {
	mu       sync.Mutex
	closed   bool
	sent     [][]byte
	incoming chan incomingPacket
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan incomingPacket, 8)}
}

func (c *fakeConn) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent = append(c.sent, packet)
	return nil
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, int, error) {
	select {
	case p, ok := <-c.incoming:
		if !ok {
			return nil, 0, errors.New("closed")
		}
		return p.data, p.ifIndex, nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func newTestAdvertiser(t *testing.T) (*Advertiser, *fakeConn, *fakeConn) {
	t.Helper()
	send := newFakeConn()
	recv := newFakeConn()
	adv := New(
		func() (Connection, error) { return send, nil },
		func() (Connection, error) { return recv, nil },
		zerolog.Nop(),
	)
	return adv, send, recv
}

func TestAdvertiserStartStopDrains(t *testing.T) {
	adv, _, _ := newTestAdvertiser(t)

	require.NoError(t, adv.Start("host"))
	assert.True(t, adv.Live())

	adv.Stop()
	assert.False(t, adv.Live())
}

func TestAdvertiserObservesIncomingAnnouncements(t *testing.T) {
	adv, _, recv := newTestAdvertiser(t)
	require.NoError(t, adv.Start("host"))
	defer adv.Stop()

	recv.incoming <- incomingPacket{
		data:    []byte("peer-a._opcua-tcp._tcp.local.|opc.tcp://peer-a:4840"),
		ifIndex: 2,
	}

	require.Eventually(t, func() bool {
		_, ok := adv.Table().Get("peer-a._opcua-tcp._tcp.local.")
		return ok
	}, time.Second, time.Millisecond)

	entry, _ := adv.Table().Get("peer-a._opcua-tcp._tcp.local.")
	assert.Equal(t, 2, entry.ObservedInterface, "arrival interface from the control message is recorded")
}

func TestSendMulticastMessagesFlushesSelfRecord(t *testing.T) {
	adv, send, _ := newTestAdvertiser(t)
	require.NoError(t, adv.Start("myhost"))
	defer adv.Stop()

	require.NoError(t, adv.SendMulticastMessages(context.Background()))
	sent := send.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, FQDNRecord("myhost"), string(sent[0]))
}

func TestStartIsIdempotent(t *testing.T) {
	adv, _, _ := newTestAdvertiser(t)
	require.NoError(t, adv.Start("host"))
	require.NoError(t, adv.Start("host"))
	adv.Stop()
}
