// Package pool implements the Outbound Register Pool: a fixed-size
// array of asynchronous outbound registration sessions, each driven
// by its own small state machine (spec.md §4.3).
package pool

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/discoverymanager/discovery/client"
	"github.com/joshuafuller/discoverymanager/discovery/eventloop"
	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

// MaxRegisterRequests bounds the pool's memory and avoids allocator
// pressure during transient peaks (spec.md §3, §5). Matches the
// original's UA_MAXREGISTER_REQUESTS.
const MaxRegisterRequests = 10

// slot is one entry of the fixed-capacity array. A slot is in-use iff
// client != nil (spec.md §3 invariant).
type slot struct {
	client            client.Client
	unregister        bool
	semaphoreFilePath string
}

func (s *slot) occupied() bool { return s.client != nil }

// Outcome names how one outbound registration attempt concluded, for
// callers that want to observe results (discovery/metrics).
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFallback Outcome = "fallback"
	OutcomeFailed   Outcome = "failed"
)

// Pool is the Outbound Register Pool. Its own mutex stands in for the
// server service lock spec.md §5 assumes the caller already holds
// (SPEC_FULL.md §11 Open Question (a)).
type Pool struct {
	mu    sync.Mutex
	slots [MaxRegisterRequests]slot

	newClient client.Factory
	loop      eventloop.EventLoop
	logger    zerolog.Logger

	appDesc     protocol.ApplicationDescription
	mdnsEnabled bool
	mdnsConfig  *protocol.MdnsDiscoveryConfiguration

	// onOutcome, when set, is called once per RegisterServer response:
	// success, failed, or fallback (recorded when RegisterServer2 is
	// issued; the RegisterServer2 result itself is not recorded).
	// Attempts that never get a RegisterServer response, such as a
	// failed connect, record no outcome. Used by discovery.Manager to
	// feed discovery/metrics without this package depending on it
	// directly.
	onOutcome func(Outcome)

	// onDrainChanged is called after every slot reclamation so the
	// Lifecycle Controller can recompute its drain gate (spec.md §4.3
	// "Slot reclamation").
	onDrainChanged func()
}

// New builds an empty Pool. newClient constructs outbound clients;
// loop schedules deferred slot reclamation.
func New(newClient client.Factory, loop eventloop.EventLoop, logger zerolog.Logger) *Pool {
	return &Pool{newClient: newClient, loop: loop, logger: logger}
}

// Configure sets the application description and mDNS extension used
// to build outbound registration bodies. Must be called before any
// Register call; safe to call again to update values.
func (p *Pool) Configure(appDesc protocol.ApplicationDescription, mdnsEnabled bool, mdnsConfig *protocol.MdnsDiscoveryConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appDesc = appDesc
	p.mdnsEnabled = mdnsEnabled
	p.mdnsConfig = mdnsConfig
}

// SetOnOutcome installs the outcome observer.
func (p *Pool) SetOnOutcome(fn func(Outcome)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOutcome = fn
}

// SetOnDrainChanged installs the drain-gate recheck hook.
func (p *Pool) SetOnDrainChanged(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDrainChanged = fn
}

// Occupied reports how many slots currently hold a live client.
func (p *Pool) Occupied() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := range p.slots {
		if p.slots[i].occupied() {
			n++
		}
	}
	return n
}

// Register claims a free slot and kicks off an asynchronous outbound
// registration (or deregistration, when unregister is true) against
// discoveryServerURL. Mirrors UA_Server_register: synchronous setup,
// asynchronous completion.
func (p *Pool) Register(ctx context.Context, discoveryServerURL, semaphoreFilePath string, unregister bool) protocol.StatusCode {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i := range p.slots {
		if !p.slots[i].occupied() {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.logger.Error().Msg("too many outstanding register requests, cannot proceed")
		return protocol.BadInternalError
	}

	cfg := client.Config{
		EndpointURL:  discoveryServerURL,
		NoSession:    true,
		SecurityMode: protocol.SecurityModeSignAndEncrypt,
	}
	c, err := p.newClient(cfg)
	if err != nil {
		return protocol.BadOutOfMemory
	}

	p.slots[idx] = slot{client: c, unregister: unregister, semaphoreFilePath: semaphoreFilePath}
	c.SetStateCallback(p.makeStateCallback(idx))

	if err := c.Connect(ctx); err != nil {
		p.logger.Error().Err(err).Str("endpoint", discoveryServerURL).Msg("failed to start secure channel connect")
	}
	return protocol.Good
}

func (p *Pool) makeStateCallback(idx int) client.StateCallback {
	return func(c client.Client, channel protocol.SecureChannelState,
		mode protocol.MessageSecurityMode, connectStatus protocol.StatusCode) {
		p.onClientState(idx, c, channel, mode, connectStatus)
	}
}

// onClientState implements the per-slot observation table in spec.md
// §4.3 ("Outbound session state machine").
func (p *Pool) onClientState(idx int, c client.Client, channel protocol.SecureChannelState,
	mode protocol.MessageSecurityMode, connectStatus protocol.StatusCode) {
	if connectStatus != protocol.Good {
		if connectStatus != protocol.BadConnectionClosed {
			p.logger.Error().Str("status", connectStatus.String()).Msg("could not connect to the discovery server")
		}
		if channel == protocol.ChannelClosed {
			p.scheduleCleanup(idx)
		}
		return
	}

	if channel != protocol.ChannelOpen {
		return
	}
	if mode != protocol.SecurityModeSignAndEncrypt {
		// Intermediate unencrypted channel during endpoint discovery; wait.
		return
	}

	p.mu.Lock()
	s := p.slots[idx]
	req := p.setupRegisterRequest(s)
	p.mu.Unlock()

	resultCh := c.CallRegisterServer(context.Background(), req)
	go p.awaitRegisterServer(idx, c, resultCh)
}

func (p *Pool) awaitRegisterServer(idx int, c client.Client, resultCh <-chan client.RegisterServerResult) {
	result := <-resultCh
	p.onRegisterServerResponse(idx, c, result)
}

// onRegisterServerResponse implements the RegisterServer response
// branches in spec.md §4.3.
func (p *Pool) onRegisterServerResponse(idx int, c client.Client, result client.RegisterServerResult) {
	if result.Err != nil {
		p.logger.Error().Err(result.Err).Msg("RegisterServer call failed")
		c.DisconnectSecureChannelAsync()
		p.recordOutcome(OutcomeFailed)
		return
	}

	code := result.Response.ServiceResult
	switch code {
	case protocol.Good:
		p.logger.Info().Msg("RegisterServer succeeded")
		c.DisconnectSecureChannelAsync()
		p.recordOutcome(OutcomeSuccess)
	case protocol.BadNotImplemented, protocol.BadServiceUnsupported:
		p.mu.Lock()
		s := p.slots[idx]
		req2 := p.setupRegisterRequest2(s)
		p.mu.Unlock()
		resultCh := c.CallRegisterServer2(context.Background(), req2)
		go p.awaitRegisterServer2(idx, c, resultCh)
		p.recordOutcome(OutcomeFallback)
	default:
		p.logger.Warn().Str("status", code.String()).Msg("RegisterServer failed")
		c.DisconnectSecureChannelAsync()
		p.recordOutcome(OutcomeFailed)
	}
}

func (p *Pool) awaitRegisterServer2(idx int, c client.Client, resultCh <-chan client.RegisterServer2Result) {
	result := <-resultCh
	p.onRegisterServer2Response(idx, c, result)
}

// onRegisterServer2Response implements the RegisterServer2 handler in
// spec.md §4.3: logs success or failure, then always disconnects.
func (p *Pool) onRegisterServer2Response(idx int, c client.Client, result client.RegisterServer2Result) {
	if result.Err != nil {
		p.logger.Error().Err(result.Err).Msg("RegisterServer2 call failed")
	} else if result.Response.ServiceResult == protocol.Good {
		p.logger.Info().Msg("RegisterServer2 succeeded")
	} else {
		p.logger.Warn().Str("status", result.Response.ServiceResult.String()).Msg("RegisterServer2 failed")
	}
	c.DisconnectSecureChannelAsync()
}

// setupRegisterRequest builds the RegisterServer body per spec.md
// §4.3 "Request payload". Caller must hold p.mu.
func (p *Pool) setupRegisterRequest(s slot) *protocol.RegisterServerRequest {
	return &protocol.RegisterServerRequest{
		TimeoutHint: protocol.RegisterTimeoutHint,
		Server:      p.registeredServerBody(s),
	}
}

func (p *Pool) setupRegisterRequest2(s slot) *protocol.RegisterServer2Request {
	req := &protocol.RegisterServer2Request{
		TimeoutHint: protocol.RegisterTimeoutHint,
		Server:      p.registeredServerBody(s),
	}
	if p.mdnsEnabled {
		req.DiscoveryConfig = p.mdnsConfig
	}
	return req
}

func (p *Pool) registeredServerBody(s slot) protocol.RegisteredServer {
	return protocol.RegisteredServer{
		ServerURI:         p.appDesc.ApplicationURI,
		ProductURI:        p.appDesc.ProductURI,
		ServerType:        p.appDesc.ApplicationType,
		GatewayServerURI:  p.appDesc.GatewayServerURI,
		DiscoveryURLs:     p.appDesc.DiscoveryURLs,
		ServerNames:       []protocol.LocalizedText{p.appDesc.ApplicationName},
		SemaphoreFilePath: s.semaphoreFilePath,
		IsOnline:          !s.unregister,
	}
}

// scheduleCleanup defers slot reclamation to the event loop's next
// turn, never running it on the transport callback's own stack
// (spec.md §4.3 "Slot reclamation").
func (p *Pool) scheduleCleanup(idx int) {
	p.loop.AddDelayedCallback(func() {
		p.cleanupSlot(idx)
	})
}

func (p *Pool) cleanupSlot(idx int) {
	p.mu.Lock()
	s := p.slots[idx]
	p.slots[idx] = slot{}
	onDrainChanged := p.onDrainChanged
	p.mu.Unlock()

	if s.client != nil {
		_ = s.client.Close()
	}
	if onDrainChanged != nil {
		onDrainChanged()
	}
}

func (p *Pool) recordOutcome(o Outcome) {
	p.mu.Lock()
	fn := p.onOutcome
	p.mu.Unlock()
	if fn != nil {
		fn(o)
	}
}

// DisconnectAll cancels every outstanding outbound request, the way
// Stop does (spec.md §4.1). Cleanup happens later, once each client
// reports ChannelClosed.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	clients := make([]client.Client, 0, MaxRegisterRequests)
	for i := range p.slots {
		if p.slots[i].occupied() {
			clients = append(clients, p.slots[i].client)
		}
	}
	p.mu.Unlock()

	for _, c := range clients {
		c.DisconnectSecureChannelAsync()
	}
}

// AnyOccupied reports whether any slot still holds a live client,
// part of the drain-gate condition in spec.md §4.1.
func (p *Pool) AnyOccupied() bool {
	return p.Occupied() > 0
}
