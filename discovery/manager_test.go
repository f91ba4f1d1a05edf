package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/discoverymanager/discovery/client"
	"github.com/joshuafuller/discoverymanager/discovery/mdns"
	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

// newTestManager returns the Manager and a getter for the most recent
// simulated client its factory built (nil until the first registration).
func newTestManager(t *testing.T, opts ...Option) (*Manager, func() *client.Simulated) {
	t.Helper()
	var last *client.Simulated
	factory := func(cfg client.Config) (client.Client, error) {
		last = client.NewSimulated(cfg)
		return last, nil
	}
	all := append([]Option{WithClientFactory(factory)}, opts...)
	m, err := New(all...)
	require.NoError(t, err)
	return m, func() *client.Simulated { return last }
}

func TestStartStopLifecycleHappyPath(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, protocol.StateStopped, m.State())

	require.Equal(t, protocol.Good, m.Start(context.Background()))
	assert.Equal(t, protocol.StateStarted, m.State())

	m.Stop(context.Background())
	assert.Equal(t, protocol.StateStopped, m.State())
	assert.Equal(t, protocol.Good, m.Free())
}

func TestStartRejectedUnlessStopped(t *testing.T) {
	m, _ := newTestManager(t)
	require.Equal(t, protocol.Good, m.Start(context.Background()))
	assert.Equal(t, protocol.BadInternalError, m.Start(context.Background()))
	m.Stop(context.Background())
}

func TestFreeRejectedUnlessStopped(t *testing.T) {
	m, _ := newTestManager(t)
	require.Equal(t, protocol.Good, m.Start(context.Background()))
	assert.Equal(t, protocol.BadInternalError, m.Free())
	m.Stop(context.Background())
	assert.Equal(t, protocol.Good, m.Free())
}

// S3 — Drain on stop: Stop must not report Stopped while an outbound
// client is still connected; reaching Stopped happens only once the
// pool reports nothing occupied.
func TestStopDrainsOccupiedPoolSlotBeforeReachingStopped(t *testing.T) {
	var transitions []protocol.LifecycleState
	m, lastSim := newTestManager(t, WithNotifyState(func(s protocol.LifecycleState) {
		transitions = append(transitions, s)
	}))
	require.Equal(t, protocol.Good, m.Start(context.Background()))

	require.Equal(t, protocol.Good, m.RegisterDiscovery(context.Background(), "opc.tcp://ds:4840", ""))
	require.Eventually(t, func() bool { return lastSim() != nil }, time.Second, time.Millisecond)
	sim := lastSim()

	sim.SimulateState(protocol.ChannelOpen, protocol.SecurityModeSignAndEncrypt, protocol.Good)
	sim.SimulateRegisterServerResponse(protocol.Good)
	require.Eventually(t, func() bool { return sim.DisconnectCalls() > 0 }, time.Second, time.Millisecond)

	m.Stop(context.Background())
	assert.Equal(t, protocol.StateStopping, m.State(), "must not be Stopped while the client is still occupying a slot")

	sim.SimulateState(protocol.ChannelClosed, protocol.SecurityModeInvalid, protocol.BadConnectionClosed)
	require.Eventually(t, func() bool { return m.State() == protocol.StateStopped }, time.Second, time.Millisecond)

	require.Contains(t, transitions, protocol.StateStopping)
	require.Contains(t, transitions, protocol.StateStopped)
}

func TestRegisterDiscoveryRejectedWhenNotStarted(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, protocol.BadInternalError, m.RegisterDiscovery(context.Background(), "opc.tcp://ds:4840", ""))
}

func TestDeregisterDiscoverySendsOfflineBody(t *testing.T) {
	m, lastSim := newTestManager(t)
	require.Equal(t, protocol.Good, m.Start(context.Background()))
	defer m.Stop(context.Background())

	require.Equal(t, protocol.Good, m.DeregisterDiscovery(context.Background(), "opc.tcp://ds:4840"))
	require.Eventually(t, func() bool { return lastSim() != nil }, time.Second, time.Millisecond)
	sim := lastSim()

	sim.SimulateState(protocol.ChannelOpen, protocol.SecurityModeSignAndEncrypt, protocol.Good)
	require.Eventually(t, func() bool { return sim.LastRegisterRequest() != nil }, time.Second, time.Millisecond)
	assert.False(t, sim.LastRegisterRequest().Server.IsOnline)
}

type loopbackConn struct {
	incoming chan []byte
}

func (c *loopbackConn) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case c.incoming <- packet:
	default:
	}
	return nil
}

func (c *loopbackConn) Receive(ctx context.Context) ([]byte, int, error) {
	select {
	case p := <-c.incoming:
		return p, 0, nil
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

func (c *loopbackConn) Close() error { return nil }

// Stop must wait for the Multicast Advertiser to release its
// connections too, not only the outbound register pool.
func TestStopDrainsMulticastAdvertiser(t *testing.T) {
	ch := make(chan []byte, 4)
	factory := func() (mdns.Connection, error) { return &loopbackConn{incoming: ch}, nil }

	m, _ := newTestManager(t, WithMulticast(factory, factory, nil), WithHostname("test-host"))
	require.Equal(t, protocol.Good, m.Start(context.Background()))
	assert.True(t, m.Advertiser().Live())

	m.Stop(context.Background())
	assert.Equal(t, protocol.StateStopped, m.State())
	assert.False(t, m.Advertiser().Live())
}
