package table

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(fileExists FileExistsFunc) *Table {
	return New(zerolog.Nop(), fileExists)
}

func TestUpsertAndGet(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)

	e, ok := tb.Get("urn:a")
	require.True(t, ok)
	assert.Equal(t, "urn:a", e.ServerURI)
	assert.WithinDuration(t, time.Now(), e.LastSeen, time.Second)
}

func TestUpsertRefreshesLastSeen(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	first, _ := tb.Get("urn:a")

	time.Sleep(5 * time.Millisecond)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	second, _ := tb.Get("urn:a")

	assert.True(t, second.LastSeen.After(first.LastSeen))
	assert.Equal(t, 1, tb.Len())
}

func TestUpsertOfflineRemovesImmediately(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	require.Equal(t, 1, tb.Len())

	tb.Upsert(Entry{ServerURI: "urn:a"}, false)
	assert.Equal(t, 0, tb.Len())
}

// S5 — Semaphore eviction.
func TestCleanupSemaphoreEviction(t *testing.T) {
	exists := true
	fileExists := func(path string) bool { return exists }
	tb := newTestTable(fileExists)
	tb.Upsert(Entry{ServerURI: "urn:a", SemaphoreFilePath: "/tmp/srv.sem"}, true)

	tb.Cleanup(0)
	tb.Cleanup(0)
	_, ok := tb.Get("urn:a")
	assert.True(t, ok, "entry present after ticks 1-2")

	exists = false
	removals := tb.Cleanup(0)
	_, ok = tb.Get("urn:a")
	assert.False(t, ok, "entry removed at tick 3")
	require.Len(t, removals, 1)
	assert.Equal(t, ReasonSemaphoreDeleted, removals[0].Reason)
	assert.Equal(t, "/tmp/srv.sem", removals[0].SemaphoreFilePath)
}

// S6 — Timeout eviction.
func TestCleanupTimeoutEviction(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	tb.mu.Lock()
	tb.entries["urn:a"].LastSeen = time.Now().Add(-59 * time.Second)
	tb.mu.Unlock()

	removals := tb.Cleanup(60)
	assert.Empty(t, removals)
	_, ok := tb.Get("urn:a")
	assert.True(t, ok)

	tb.mu.Lock()
	tb.entries["urn:a"].LastSeen = time.Now().Add(-61 * time.Second)
	tb.mu.Unlock()

	removals = tb.Cleanup(60)
	require.Len(t, removals, 1)
	assert.Equal(t, ReasonTimedOut, removals[0].Reason)
	_, ok = tb.Get("urn:a")
	assert.False(t, ok)
}

func TestCleanupTimeoutDisabledWhenZero(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	tb.mu.Lock()
	tb.entries["urn:a"].LastSeen = time.Now().Add(-time.Hour)
	tb.mu.Unlock()

	removals := tb.Cleanup(0)
	assert.Empty(t, removals)
}

func TestCleanupProbeFailureIsConservative(t *testing.T) {
	// A probe reports the file as present unless it is confirmed
	// missing (see osFileExists), so a "present" answer must never
	// evict an entry that has not timed out.
	tb := newTestTable(func(string) bool { return true })
	tb.Upsert(Entry{ServerURI: "urn:a", SemaphoreFilePath: "/tmp/srv.sem"}, true)
	tb.mu.Lock()
	tb.entries["urn:a"].LastSeen = time.Now().Add(-30 * time.Second)
	tb.mu.Unlock()

	removals := tb.Cleanup(60)
	assert.Empty(t, removals)
}

func TestListIsASnapshot(t *testing.T) {
	tb := newTestTable(nil)
	tb.Upsert(Entry{ServerURI: "urn:a"}, true)
	tb.Upsert(Entry{ServerURI: "urn:b"}, true)

	list := tb.List()
	require.Len(t, list, 2)
	tb.Remove("urn:a")
	assert.Len(t, list, 2, "snapshot unaffected by later mutation")
}
