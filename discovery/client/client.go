// Package client defines the outbound secure-channel client contract
// the Outbound Register Pool drives (spec.md §4.3, §6). The real
// secure-channel/transport stack is an external collaborator out of
// scope for this module (spec.md §1); this package only names the
// shape the pool needs and ships a deterministic double for tests
// and the demo host, the same split the teacher draws between its
// transport.Transport interface and UDPv4Transport.
package client

import (
	"context"

	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

// StateCallback is invoked on every observed transition of the
// secure channel, session, or connect status. clientContext in the
// original is carried by the closure instead of a context pointer.
type StateCallback func(c Client, channel protocol.SecureChannelState,
	securityMode protocol.MessageSecurityMode, connectStatus protocol.StatusCode)

// Config adopts the caller-supplied client configuration the way
// UA_Server_register mutates a UA_ClientConfig before constructing
// the client: endpoint URL, security mode, session policy, and an
// optional logger. The state callback is not part of Config; the pool
// installs it on the constructed client with SetStateCallback.
type Config struct {
	EndpointURL  string
	NoSession    bool
	SecurityMode protocol.MessageSecurityMode
	Logger       Logger
}

// Logger is the minimal logging surface a Client implementation may
// use. discovery/pool leaves Config.Logger nil.
type Logger interface {
	Debugf(format string, args ...any)
}

// Client is the outbound secure-channel session contract consumed by
// discovery/pool. Connect/Disconnect are asynchronous: completion and
// every subsequent state change is reported through the callback
// installed via SetStateCallback, never through a return value.
type Client interface {
	// SetStateCallback installs the callback the pool uses to drive
	// its per-slot state machine. Must be called before Connect.
	SetStateCallback(cb StateCallback)

	// Connect starts an asynchronous secure-channel handshake against
	// the configured endpoint. Returns immediately; progress is
	// reported via the state callback.
	Connect(ctx context.Context) error

	// DisconnectSecureChannelAsync requests an asynchronous teardown.
	// Cancellation is advisory: the caller must wait for a ChannelClosed
	// state-callback notification before considering the client done.
	DisconnectSecureChannelAsync()

	// CallRegisterServer issues the RegisterServer service call
	// asynchronously; the result arrives via the returned channel
	// exactly once.
	CallRegisterServer(ctx context.Context, req *protocol.RegisterServerRequest) <-chan RegisterServerResult

	// CallRegisterServer2 issues the RegisterServer2 fallback call.
	CallRegisterServer2(ctx context.Context, req *protocol.RegisterServer2Request) <-chan RegisterServer2Result

	// Close releases any client-owned resources. Safe to call once
	// the state callback has reported ChannelClosed.
	Close() error
}

// RegisterServerResult is delivered on the channel CallRegisterServer returns.
type RegisterServerResult struct {
	Response *protocol.RegisterServerResponse
	Err      error
}

// RegisterServer2Result is delivered on the channel CallRegisterServer2 returns.
type RegisterServer2Result struct {
	Response *protocol.RegisterServer2Response
	Err      error
}

// Factory constructs a Client from a Config. The pool depends only on
// this function type, never on a concrete transport, so tests and the
// demo host can each supply their own.
type Factory func(cfg Config) (Client, error)
