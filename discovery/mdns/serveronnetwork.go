package mdns

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// hashBuckets is the power-of-two bucket count for the serverName
// hash index (spec.md §4.4, ua_discovery.c SERVER_ON_NETWORK_HASH_SIZE).
const hashBuckets = 64

// ServerOnNetwork is one advertisement observed on the LAN (spec.md §3).
type ServerOnNetwork struct {
	ID                 uint32
	RecordUUID         uuid.UUID
	ServerName         string
	DiscoveryURL       string
	ServerCapabilities []string
	ObservedAt         time.Time

	// ObservedInterface is the IP_PKTINFO interface index the
	// advertisement's control message reported, or 0 when the
	// connection never enabled control messages (Connection.Receive).
	ObservedInterface int
}

// Table holds observed peers ordered by first observation, with a
// bucketed hash index by ServerName for fast membership checks, and a
// monotonic id allocator whose epoch can be reset so long-running
// servers can force re-enumeration (SPEC_FULL.md §5, §10 S7;
// supplements ua_discovery.c's process-start-only epoch).
type Table struct {
	mu       sync.Mutex
	buckets  map[uint32][]*ServerOnNetwork
	ordered  []*ServerOnNetwork
	nextID   uint32
	epochSet time.Time
}

// NewTable builds an empty Table with a fresh epoch.
func NewTable() *Table {
	return &Table{
		buckets:  make(map[uint32][]*ServerOnNetwork),
		nextID:   1,
		epochSet: time.Now(),
	}
}

func bucketOf(serverName string) uint32 {
	var h uint32 = 2166136261 // FNV-1a offset basis
	for i := 0; i < len(serverName); i++ {
		h ^= uint32(serverName[i])
		h *= 16777619
	}
	return h % hashBuckets
}

func (t *Table) lookupLocked(serverName string) *ServerOnNetwork {
	for _, e := range t.buckets[bucketOf(serverName)] {
		if e.ServerName == serverName {
			return e
		}
	}
	return nil
}

// Observe records (or refreshes) one advertisement. Re-observing the
// same ServerName updates its entry in place rather than duplicating
// it. ifIndex is the interface the advertisement arrived on (0 if
// unknown); pass 0 for entries not sourced from a live connection.
func (t *Table) Observe(serverName, discoveryURL string, capabilities []string, ifIndex int) *ServerOnNetwork {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing := t.lookupLocked(serverName); existing != nil {
		existing.DiscoveryURL = discoveryURL
		existing.ServerCapabilities = capabilities
		existing.ObservedAt = time.Now()
		existing.ObservedInterface = ifIndex
		return existing
	}

	entry := &ServerOnNetwork{
		ID:                 t.nextID,
		RecordUUID:         uuid.New(),
		ServerName:         serverName,
		DiscoveryURL:       discoveryURL,
		ServerCapabilities: capabilities,
		ObservedAt:         time.Now(),
		ObservedInterface:  ifIndex,
	}
	t.nextID++
	b := bucketOf(serverName)
	t.buckets[b] = append(t.buckets[b], entry)
	t.ordered = append(t.ordered, entry)
	return entry
}

// Get returns the observed entry for serverName, if any.
func (t *Table) Get(serverName string) (*ServerOnNetwork, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.lookupLocked(serverName)
	if e == nil {
		return nil, false
	}
	copyE := *e
	return &copyE, true
}

// List returns every observed entry, ordered by first observation;
// re-observing an entry refreshes it in place without moving it.
func (t *Table) List() []ServerOnNetwork {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ServerOnNetwork, len(t.ordered))
	for i, e := range t.ordered {
		out[i] = *e
	}
	return out
}

// ResetEpoch clears the id allocator back to 1 as of at, retaining
// existing entries (S7 in SPEC_FULL.md §10).
func (t *Table) ResetEpoch(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID = 1
	t.epochSet = at
}

// Epoch reports when the id allocator was last reset.
func (t *Table) Epoch() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epochSet
}

// FQDNRecord formats the self-advertisement record string cached by
// the Advertiser (spec.md §4.4 "cached fully-qualified-domain-name
// mDNS record string").
func FQDNRecord(hostname string) string {
	return fmt.Sprintf("%s.local.", hostname)
}
