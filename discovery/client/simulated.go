package client

import (
	"context"
	"sync"

	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

// Simulated is a deterministic Client double: it never touches the
// network and every state transition or service response is driven
// explicitly by the owning test or demo, standing in for the secure
// channel stack named out of scope in spec.md §1.
type Simulated struct {
	cfg Config

	mu             sync.Mutex
	cb             StateCallback
	closed         bool
	registerCh     chan RegisterServerResult
	register2Ch    chan RegisterServer2Result
	connectCalls   int
	disconnectCall int
	lastRegister   *protocol.RegisterServerRequest
	lastRegister2  *protocol.RegisterServer2Request
}

// NewSimulated builds a Simulated client bound to cfg. Use as the
// client.Factory in tests: func(cfg Config) (Client, error) { return
// NewSimulated(cfg), nil }.
func NewSimulated(cfg Config) *Simulated {
	return &Simulated{
		cfg:         cfg,
		registerCh:  make(chan RegisterServerResult, 1),
		register2Ch: make(chan RegisterServer2Result, 1),
	}
}

func (s *Simulated) SetStateCallback(cb StateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb = cb
}

// Connect records the call; it does not transition state on its own.
// Tests advance the channel with SimulateState.
func (s *Simulated) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.connectCalls++
	s.mu.Unlock()
	return nil
}

func (s *Simulated) DisconnectSecureChannelAsync() {
	s.mu.Lock()
	s.disconnectCall++
	s.mu.Unlock()
}

func (s *Simulated) CallRegisterServer(ctx context.Context, req *protocol.RegisterServerRequest) <-chan RegisterServerResult {
	s.mu.Lock()
	s.lastRegister = req
	s.mu.Unlock()
	return s.registerCh
}

func (s *Simulated) CallRegisterServer2(ctx context.Context, req *protocol.RegisterServer2Request) <-chan RegisterServer2Result {
	s.mu.Lock()
	s.lastRegister2 = req
	s.mu.Unlock()
	return s.register2Ch
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SimulateState fires the state callback as if the transport reported
// this triple, the way the real client reports connect progress.
func (s *Simulated) SimulateState(channel protocol.SecureChannelState,
	mode protocol.MessageSecurityMode, connectStatus protocol.StatusCode) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(s, channel, mode, connectStatus)
	}
}

// SimulateRegisterServerResponse delivers a RegisterServer result to
// whichever caller is waiting on CallRegisterServer's channel.
func (s *Simulated) SimulateRegisterServerResponse(result protocol.StatusCode) {
	s.registerCh <- RegisterServerResult{Response: &protocol.RegisterServerResponse{ServiceResult: result}}
}

// SimulateRegisterServer2Response delivers a RegisterServer2 result.
func (s *Simulated) SimulateRegisterServer2Response(result protocol.StatusCode) {
	s.register2Ch <- RegisterServer2Result{Response: &protocol.RegisterServer2Response{ServiceResult: result}}
}

// LastRegisterRequest returns the most recent RegisterServer request body, if any.
func (s *Simulated) LastRegisterRequest() *protocol.RegisterServerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRegister
}

// LastRegisterServer2Request returns the most recent RegisterServer2 request body, if any.
func (s *Simulated) LastRegisterServer2Request() *protocol.RegisterServer2Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRegister2
}

// ConnectCalls reports how many times Connect was invoked.
func (s *Simulated) ConnectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCalls
}

// DisconnectCalls reports how many times DisconnectSecureChannelAsync was invoked.
func (s *Simulated) DisconnectCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnectCall
}

// Closed reports whether Close has been called.
func (s *Simulated) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
