// Package discovery implements the Discovery Manager: the server
// component that maintains a registry of peer servers (Discovery
// Server role) and registers this server against a remote Discovery
// Server (Discovery Client role), per spec.md.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/discoverymanager/discovery/client"
	"github.com/joshuafuller/discoverymanager/discovery/eventloop"
	"github.com/joshuafuller/discoverymanager/discovery/mdns"
	"github.com/joshuafuller/discoverymanager/discovery/metrics"
	"github.com/joshuafuller/discoverymanager/discovery/pool"
	"github.com/joshuafuller/discoverymanager/discovery/protocol"
	"github.com/joshuafuller/discoverymanager/discovery/table"
)

// Name is the Server Component name the host looks this component up
// by (spec.md §4.1 "discovery").
const Name = "discovery"

// cleanupPeriod is the Cleanup Ticker's fixed period (spec.md §4.1).
const cleanupPeriod = 1000 * time.Millisecond

// Manager is the Discovery Manager: the Lifecycle Controller plus the
// Registration Table, the Outbound Register Pool, and the optional
// Multicast Advertiser it coordinates (spec.md §2).
type Manager struct {
	logger zerolog.Logger

	loop          eventloop.EventLoop
	ownsLoop      bool
	clientFactory client.Factory
	fileExists    table.FileExistsFunc

	appDesc               protocol.ApplicationDescription
	hostname              string
	cleanupTimeoutSeconds uint32

	mdnsEnabled bool
	mdnsConfig  *protocol.MdnsDiscoveryConfiguration
	mdnsSend    mdns.ConnectionFactory
	mdnsRecv    mdns.ConnectionFactory
	advertiser  *mdns.Advertiser

	metrics *metrics.Recorder

	table *table.Table
	pool  *pool.Pool

	mu            sync.Mutex
	state         protocol.LifecycleState
	notifyState   func(protocol.LifecycleState)
	cleanupHandle eventloop.CallbackHandle
	started       bool
}

// New builds a Manager in the Stopped state. When no event loop is
// supplied, New starts the default goroutine-backed loop, whose
// dispatch goroutine runs from then on; the cleanup ticker is not
// scheduled until Start.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		logger:        zerolog.Nop(),
		clientFactory: func(cfg client.Config) (client.Client, error) { return client.NewSimulated(cfg), nil },
		hostname:      "localhost",
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if m.loop == nil {
		m.loop = eventloop.NewGoroutine()
		m.ownsLoop = true
	}
	if m.mdnsEnabled && m.advertiser == nil {
		m.advertiser = mdns.New(m.mdnsSend, m.mdnsRecv, m.logger)
	}

	m.table = table.New(m.logger, m.fileExists)
	m.pool = pool.New(m.clientFactory, m.loop, m.logger)
	m.pool.Configure(m.appDesc, m.mdnsEnabled, m.mdnsConfig)
	m.pool.SetOnDrainChanged(func() { m.recomputeState() })
	if m.metrics != nil {
		m.pool.SetOnOutcome(func(o pool.Outcome) {
			m.metrics.RegisterOutcome.WithLabelValues(string(o)).Inc()
		})
	}

	return m, nil
}

// State returns the Manager's current LifecycleState.
func (m *Manager) State() protocol.LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Table exposes the Registration Table for the protocol-handler side
// of RegisterServer/RegisterServer2 to mutate (spec.md §4.2: table
// mutation on inbound registration is out of scope for this
// component, but the table itself must be reachable by the caller
// that implements those service handlers).
func (m *Manager) Table() *table.Table { return m.table }

// Advertiser exposes the Multicast Advertiser, or nil when multicast
// is not enabled.
func (m *Manager) Advertiser() *mdns.Advertiser { return m.advertiser }

// Start activates the cleanup ticker and, if configured, the
// multicast advertiser, then transitions STOPPED -> STARTED (spec.md
// §4.1). Valid only from Stopped.
func (m *Manager) Start(ctx context.Context) protocol.StatusCode {
	m.mu.Lock()
	if m.state != protocol.StateStopped {
		m.mu.Unlock()
		return protocol.BadInternalError
	}
	m.mu.Unlock()

	m.cleanupHandle = m.loop.AddRepeatedCallback(m.runCleanup, cleanupPeriod)

	if m.mdnsEnabled {
		if err := m.advertiser.Start(m.hostname); err != nil {
			m.logger.Error().Err(err).Msg("failed to start multicast advertiser")
		}
	}

	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	m.setState(protocol.StateStarted)
	return protocol.Good
}

// Stop disables the cleanup ticker, cancels every outstanding
// outbound client, stops the multicast advertiser, and transitions
// toward STOPPED — reaching it immediately only if nothing is left to
// drain (spec.md §4.1). No-op unless currently Started.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if m.state != protocol.StateStarted {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.loop.RemoveCallback(m.cleanupHandle)
	m.pool.DisconnectAll()

	if m.mdnsEnabled {
		m.advertiser.Stop()
	}

	m.setState(protocol.StateStopped)
}

// Free releases the Manager's own resources. Permissible only once
// State() reports Stopped (spec.md §4.1, §7).
func (m *Manager) Free() protocol.StatusCode {
	if m.State() != protocol.StateStopped {
		m.logger.Error().Msg("cannot delete the discovery manager because it is not stopped")
		return protocol.BadInternalError
	}
	if m.ownsLoop {
		if closer, ok := m.loop.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	return protocol.Good
}

// runCleanup is the 1Hz Cleanup Ticker body (spec.md §4.2).
func (m *Manager) runCleanup() {
	removals := m.table.Cleanup(m.cleanupTimeoutSeconds)
	if m.metrics != nil {
		m.metrics.TableSize.Set(float64(m.table.Len()))
		m.metrics.PoolOccupancy.Set(float64(m.pool.Occupied()))
		for _, r := range removals {
			m.metrics.CleanupRemovals.WithLabelValues(string(r.Reason)).Inc()
		}
	}

	if m.mdnsEnabled {
		if err := m.advertiser.SendMulticastMessages(context.Background()); err != nil {
			m.logger.Error().Err(err).Msg("failed to send multicast announcements")
		}
	}
}

// RegisterDiscovery registers this server against discoveryServerUrl
// (spec.md §6). Synchronous setup, asynchronous completion.
func (m *Manager) RegisterDiscovery(ctx context.Context, discoveryServerURL, semaphoreFilePath string) protocol.StatusCode {
	return m.register(ctx, discoveryServerURL, semaphoreFilePath, false)
}

// DeregisterDiscovery is equivalent to RegisterDiscovery with
// unregister=true and no semaphore path (spec.md §4.3).
func (m *Manager) DeregisterDiscovery(ctx context.Context, discoveryServerURL string) protocol.StatusCode {
	return m.register(ctx, discoveryServerURL, "", true)
}

func (m *Manager) register(ctx context.Context, discoveryServerURL, semaphoreFilePath string, unregister bool) protocol.StatusCode {
	if unregister {
		m.logger.Info().Str("endpoint", discoveryServerURL).Msg("deregistering at the discovery server")
	} else {
		m.logger.Info().Str("endpoint", discoveryServerURL).Msg("registering at the discovery server")
	}

	if m.State() != protocol.StateStarted {
		m.logger.Error().Msg("the discovery manager must be started for registering")
		return protocol.BadInternalError
	}

	return m.pool.Register(ctx, discoveryServerURL, semaphoreFilePath, unregister)
}

// recomputeState re-enters setState with the current value so a
// completed drain (slot reclamation, advertiser shutdown) can move
// the state machine the rest of the way to Stopped (spec.md §4.1
// "Every asynchronous completion... must re-enter setState").
func (m *Manager) recomputeState() {
	m.mu.Lock()
	current := m.state
	m.mu.Unlock()
	m.setState(current)
}

// setState is the drain gate (spec.md §4.1). Downgrades a STOPPING or
// STOPPED target back to STOPPING while any outbound client or
// multicast connection is still live; calls notifyState only on a
// real transition.
func (m *Manager) setState(target protocol.LifecycleState) {
	if target == protocol.StateStopping || target == protocol.StateStopped {
		target = protocol.StateStopped
		if m.mdnsEnabled && m.advertiser.Live() {
			target = protocol.StateStopping
		}
		if m.pool.AnyOccupied() {
			target = protocol.StateStopping
		}
	}

	m.mu.Lock()
	if target == m.state {
		m.mu.Unlock()
		return
	}
	m.state = target
	notify := m.notifyState
	m.mu.Unlock()

	if notify != nil {
		notify(target)
	}
}
