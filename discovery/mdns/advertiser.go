package mdns

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMulticastAddr and DefaultMulticastPort match the mDNS
// constants the teacher's transport targets (224.0.0.251:5353);
// OPC UA discovery reuses the same link-local mDNS group to announce
// _opcua-tcp._tcp services.
const (
	DefaultMulticastAddr = "224.0.0.251"
	DefaultMulticastPort = 5353
)

// ConnectionFactory builds the send or a receive Connection; swappable
// in tests so Advertiser never touches a real socket there.
type ConnectionFactory func() (Connection, error)

// Advertiser is the Multicast Advertiser (spec.md §4.4): it owns one
// send connection and zero or more receive connections, whose
// liveness gates the Lifecycle Controller's drain condition, and the
// Table of peers observed on the LAN.
type Advertiser struct {
	newSend ConnectionFactory
	newRecv ConnectionFactory
	logger  zerolog.Logger

	mu            sync.Mutex
	send          Connection
	recv          []Connection
	table         *Table
	selfRecord    string
	running       bool
	recvCtxCancel context.CancelFunc
	recvWG        sync.WaitGroup
}

// New builds an Advertiser around the given connection factories.
func New(newSend, newRecv ConnectionFactory, logger zerolog.Logger) *Advertiser {
	return &Advertiser{
		newSend: newSend,
		newRecv: newRecv,
		logger:  logger,
		table:   NewTable(),
	}
}

// Start opens the send connection and one receive connection, caching
// the self FQDN record (spec.md §4.4). Safe to call once per Stop cycle.
func (a *Advertiser) Start(hostname string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	send, err := a.newSend()
	if err != nil {
		return err
	}
	recv, err := a.newRecv()
	if err != nil {
		_ = send.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.send = send
	a.recv = []Connection{recv}
	a.selfRecord = FQDNRecord(hostname)
	a.recvCtxCancel = cancel
	a.running = true

	a.recvWG.Add(1)
	go a.receiveLoop(ctx, recv)
	return nil
}

// receiveLoop parses incoming announcements into the Table until
// cancelled. Parsing is intentionally minimal: payloads are treated
// as "serverName|discoveryURL" pairs, since the wire-level mDNS
// message codec is an external collaborator (spec.md §1). ifIndex
// comes from the connection's control messages (RFC 6762 §15) and is
// recorded on the observed entry so operators on multi-homed hosts
// can tell which NIC an advertisement arrived on.
func (a *Advertiser) receiveLoop(ctx context.Context, conn Connection) {
	defer a.recvWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		packet, ifIndex, err := conn.Receive(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		a.handleAnnouncement(packet, ifIndex)
	}
}

func (a *Advertiser) handleAnnouncement(packet []byte, ifIndex int) {
	serverName, discoveryURL, ok := splitAnnouncement(packet)
	if !ok {
		return
	}
	a.mu.Lock()
	table := a.table
	a.mu.Unlock()
	table.Observe(serverName, discoveryURL, nil, ifIndex)
}

// Stop closes every connection the Advertiser owns and waits for the
// receive loop to exit, so the Lifecycle Controller's drain gate can
// observe zero live multicast connections (spec.md §4.1).
func (a *Advertiser) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	send, recv, cancel := a.send, a.recv, a.recvCtxCancel
	a.send, a.recv = nil, nil
	a.running = false
	a.mu.Unlock()

	cancel()
	for _, c := range recv {
		_ = c.Close()
	}
	a.recvWG.Wait()
	if send != nil {
		_ = send.Close()
	}
}

// Live reports whether any send or receive connection is still
// allocated, part of the Lifecycle Controller's drain condition.
func (a *Advertiser) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send != nil || len(a.recv) != 0
}

// SendMulticastMessages flushes periodic announcements of this
// server's own presence, driven from the cleanup tick (spec.md §4.2,
// §4.4).
func (a *Advertiser) SendMulticastMessages(ctx context.Context) error {
	a.mu.Lock()
	send, record := a.send, a.selfRecord
	a.mu.Unlock()
	if send == nil {
		return nil
	}
	return send.Send(ctx, []byte(record), nil)
}

// Table exposes the observed-peer table for read access.
func (a *Advertiser) Table() *Table { return a.table }

func splitAnnouncement(packet []byte) (serverName, discoveryURL string, ok bool) {
	for i, b := range packet {
		if b == '|' {
			return string(packet[:i]), string(packet[i+1:]), true
		}
	}
	return "", "", false
}

// NewUDPConnectionFactory builds a ConnectionFactory that joins the
// given multicast group, for use as both send and receive factories
// in production (the teacher's UDPv4Transport is similarly
// bidirectional over one socket).
func NewUDPConnectionFactory(addr string, port int) ConnectionFactory {
	return func() (Connection, error) {
		return NewUDPConnection(addr, port)
	}
}
