// Package mdns implements the optional Multicast Advertiser
// (spec.md §4.4): a send connection and zero or more receive
// connections used to announce this server and observe peers over
// link-local multicast DNS, plus the ServerOnNetwork table those
// observations populate.
//
// Adapted from the teacher's internal/transport package: the same
// Transport abstraction and ipv4.PacketConn-backed socket, but built
// around the send/receive connection pair spec.md §4.4 names instead
// of the teacher's single bidirectional responder socket.
package mdns

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// Connection abstracts one multicast UDP socket so the Advertiser can
// be tested without touching the network (mirrors the teacher's
// transport.Transport interface). Receive reports the interface a
// packet arrived on, the way the teacher's UDPv4Transport does via
// control messages (RFC 6762 §15); 0 means unknown, e.g. on a
// connection that never enables control messages.
type Connection interface {
	Send(ctx context.Context, packet []byte, dest net.Addr) error
	Receive(ctx context.Context) (packet []byte, ifIndex int, err error)
	Close() error
}

// UDPConnection is the production multicast connection: a UDP socket
// bound to the given multicast group with SO_REUSEADDR/SO_REUSEPORT
// set before bind so more than one process (or more than one
// Advertiser in the same process during a restart) can share the
// port, wrapped with ipv4.PacketConn the way the teacher's
// UDPv4Transport wraps its mDNS socket to read the arrival interface
// out of IP_PKTINFO control messages.
type UDPConnection struct {
	conn     *net.UDPConn
	ipv4Conn *ipv4.PacketConn
	group    *net.UDPAddr
}

// NewUDPConnection joins the multicast group at addr:port.
func NewUDPConnection(addr string, port int) (*UDPConnection, error) {
	group, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, fmt.Sprintf("%d", port)))
	if err != nil {
		return nil, fmt.Errorf("resolve multicast address %s:%d: %w", addr, port, err)
	}

	lc := net.ListenConfig{Control: setReuseAddrAndPort}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind multicast port %d: %w", port, err)
	}
	conn := pconn.(*net.UDPConn)

	if err := conn.SetReadBuffer(65536); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set read buffer: %w", err)
	}

	ipv4Conn := ipv4.NewPacketConn(conn)
	if err := ipv4Conn.JoinGroup(nil, group); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("join multicast group %s:%d: %w", addr, port, err)
	}
	// Best-effort: control messages let Receive report the arrival
	// interface. Unsupported on some platforms; Receive degrades to
	// ifIndex=0 when cm is nil.
	_ = ipv4Conn.SetControlMessage(ipv4.FlagInterface, true)

	return &UDPConnection{
		conn:     conn,
		ipv4Conn: ipv4Conn,
		group:    group,
	}, nil
}

// setReuseAddrAndPort lets a second Advertiser bind the same mDNS
// port while the previous one is still draining during a restart,
// the same reuse semantics multicast DNS implementations generally
// require since many processes share 224.0.0.251:5353 on one host.
func setReuseAddrAndPort(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

func (c *UDPConnection) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if dest == nil {
		dest = c.group
	}
	n, err := c.conn.WriteTo(packet, dest)
	if err != nil {
		return fmt.Errorf("send multicast packet: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("partial multicast write: %d/%d bytes", n, len(packet))
	}
	return nil
}

func (c *UDPConnection) Receive(ctx context.Context) ([]byte, int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, 0, fmt.Errorf("set read deadline: %w", err)
		}
	}

	buf := make([]byte, 9000)
	n, cm, _, err := c.ipv4Conn.ReadFrom(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("receive multicast packet: %w", err)
	}

	ifIndex := 0
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	return buf[:n], ifIndex, nil
}

func (c *UDPConnection) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
