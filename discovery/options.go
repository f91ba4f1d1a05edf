package discovery

import (
	"github.com/rs/zerolog"

	"github.com/joshuafuller/discoverymanager/discovery/client"
	"github.com/joshuafuller/discoverymanager/discovery/eventloop"
	"github.com/joshuafuller/discoverymanager/discovery/mdns"
	"github.com/joshuafuller/discoverymanager/discovery/metrics"
	"github.com/joshuafuller/discoverymanager/discovery/protocol"
	"github.com/joshuafuller/discoverymanager/discovery/table"
)

// Option configures a Manager at construction time, the same
// functional-options shape the teacher's responder package uses
// (responder/options.go), generalized from mDNS responder fields to
// the Discovery Manager's own configuration surface (spec.md §6
// "Configuration").
type Option func(*Manager) error

// WithLogger sets the logger every subcomponent shares.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) error {
		m.logger = logger
		return nil
	}
}

// WithEventLoop overrides the default goroutine-backed event loop.
func WithEventLoop(loop eventloop.EventLoop) Option {
	return func(m *Manager) error {
		m.loop = loop
		m.ownsLoop = false
		return nil
	}
}

// WithClientFactory overrides how outbound outbound-registration
// clients are constructed. Defaults to client.NewSimulated, which is
// only suitable for tests and the demo host — production hosts must
// supply a factory backed by a real secure-channel implementation.
func WithClientFactory(factory client.Factory) Option {
	return func(m *Manager) error {
		m.clientFactory = factory
		return nil
	}
}

// WithFileExists overrides the Filesystem contract probe used by the
// cleanup ticker (spec.md §6). Defaults to os.Stat.
func WithFileExists(fn table.FileExistsFunc) Option {
	return func(m *Manager) error {
		m.fileExists = fn
		return nil
	}
}

// WithCleanupTimeout sets discoveryCleanupTimeout in seconds.
// Zero disables time-based eviction (spec.md §4.2).
func WithCleanupTimeout(seconds uint32) Option {
	return func(m *Manager) error {
		m.cleanupTimeoutSeconds = seconds
		return nil
	}
}

// WithApplicationDescription sets the hosting server's own
// application description, mirrored into every outbound registration
// body (spec.md §4.3).
func WithApplicationDescription(desc protocol.ApplicationDescription) Option {
	return func(m *Manager) error {
		m.appDesc = desc
		return nil
	}
}

// WithHostname sets the hostname used for the Multicast Advertiser's
// self FQDN record (spec.md §4.4).
func WithHostname(hostname string) Option {
	return func(m *Manager) error {
		m.hostname = hostname
		return nil
	}
}

// WithMulticast enables the optional Multicast Advertiser and sets the
// discovery-configuration extension carried on RegisterServer2
// fallback calls (spec.md §6 "mdnsEnabled", "mdnsConfig"). The
// Advertiser itself is constructed in New, once every option (in
// particular WithLogger) has been applied.
func WithMulticast(newSend, newRecv mdns.ConnectionFactory, cfg *protocol.MdnsDiscoveryConfiguration) Option {
	return func(m *Manager) error {
		m.mdnsEnabled = true
		m.mdnsConfig = cfg
		m.mdnsSend, m.mdnsRecv = newSend, newRecv
		return nil
	}
}

// WithMetrics wires a metrics.Recorder, observing table size, pool
// occupancy, cleanup removals, and registration outcomes.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(m *Manager) error {
		m.metrics = rec
		return nil
	}
}

// WithNotifyState installs the Server Component contract's
// notifyState hook (spec.md §6), called on every strict state
// transition.
func WithNotifyState(fn func(protocol.LifecycleState)) Option {
	return func(m *Manager) error {
		m.notifyState = fn
		return nil
	}
}
