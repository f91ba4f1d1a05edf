// Package table implements the Registration Table and its periodic
// cleanup: the in-memory set of peers that registered against this
// Discovery Server, aged out by timeout or by semaphore-file deletion
// (spec.md §3, §4.2).
package table

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/discoverymanager/discovery/protocol"
)

// Entry is a RegisteredServer record plus the bookkeeping the table
// needs to age it out (spec.md §3).
type Entry struct {
	ServerURI         string
	ProductURI        string
	ServerType        protocol.ApplicationType
	GatewayServerURI  string
	DiscoveryURLs     []string
	ServerNames       []protocol.LocalizedText
	SemaphoreFilePath string
	LastSeen          time.Time
}

// FileExistsFunc is the Filesystem contract (spec.md §6): a
// probe for whether path still exists, swappable in tests.
type FileExistsFunc func(path string) bool

// Table is the thread-safe Registration Table. Its own mutex
// serializes Upsert/Remove against the cleanup sweep, standing in for
// the service mutex spec.md §5 assumes is already held (Open Question
// (a) in SPEC_FULL.md §11).
type Table struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	fileExists FileExistsFunc
	logger     zerolog.Logger
}

// New builds an empty Table. fileExists defaults to a real os.Stat
// probe when nil.
func New(logger zerolog.Logger, fileExists FileExistsFunc) *Table {
	if fileExists == nil {
		fileExists = osFileExists
	}
	return &Table{
		entries:    make(map[string]*Entry),
		fileExists: fileExists,
		logger:     logger,
	}
}

// Upsert inserts a new entry or refreshes lastSeen on an existing one
// keyed by ServerURI (spec.md §3 invariant: serverUri unique).
// isOnline=false removes the entry immediately instead, matching the
// original's "removed in the service handler, not in cleanup" policy
// (spec.md §4.2 edge policy).
func (t *Table) Upsert(e Entry, isOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isOnline {
		delete(t.entries, e.ServerURI)
		return
	}
	stored := e
	stored.LastSeen = time.Now()
	t.entries[e.ServerURI] = &stored
}

// Remove deletes an entry by server URI unconditionally.
func (t *Table) Remove(serverURI string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, serverURI)
}

// Get returns a copy of the entry for serverURI, if present.
func (t *Table) Get(serverURI string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[serverURI]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports the current number of registered entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// List returns a snapshot of all entries, safe to range over after
// the call returns regardless of concurrent mutation.
func (t *Table) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// RemovalReason names why Cleanup evicted an entry, for logging and metrics.
type RemovalReason string

const (
	ReasonSemaphoreDeleted RemovalReason = "semaphore_deleted"
	ReasonTimedOut         RemovalReason = "timed_out"
)

// Removal describes one eviction performed by a Cleanup pass.
type Removal struct {
	ServerURI         string
	SemaphoreFilePath string
	Reason            RemovalReason
}

// Cleanup performs one sweep of the table per spec.md §4.2: probe each
// entry's semaphore file (if any), compare lastSeen against the
// configured timeout, and remove entries that fail either check. A
// cleanupTimeoutSeconds of zero disables time-based eviction. Only a
// probe that reports the file missing causes a semaphore removal; the
// default probe reports missing only for a not-exist error, so probe
// failures never cause a removal.
func (t *Table) Cleanup(cleanupTimeoutSeconds uint32) []Removal {
	t.mu.Lock()
	defer t.mu.Unlock()

	var timedOut time.Time
	timeoutEnabled := cleanupTimeoutSeconds != 0
	if timeoutEnabled {
		timedOut = time.Now().Add(-time.Duration(cleanupTimeoutSeconds) * time.Second)
	}

	var removals []Removal
	for uri, e := range t.entries {
		semaphoreDeleted := false
		if e.SemaphoreFilePath != "" {
			semaphoreDeleted = !t.probeFileExists(e.SemaphoreFilePath)
		}

		switch {
		case semaphoreDeleted:
			removals = append(removals, Removal{ServerURI: uri, SemaphoreFilePath: e.SemaphoreFilePath, Reason: ReasonSemaphoreDeleted})
			delete(t.entries, uri)
			t.logger.Info().Str("server_uri", uri).Str("semaphore_file_path", e.SemaphoreFilePath).
				Msg("registration removed: semaphore file deleted")
		case timeoutEnabled && e.LastSeen.Before(timedOut):
			removals = append(removals, Removal{ServerURI: uri, SemaphoreFilePath: e.SemaphoreFilePath, Reason: ReasonTimedOut})
			delete(t.entries, uri)
			t.logger.Info().Str("server_uri", uri).Msg("registration removed: timed out")
		}
	}
	return removals
}

func (t *Table) probeFileExists(path string) bool {
	return t.fileExists(path)
}
