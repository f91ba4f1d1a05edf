package mdns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInsertsAndRefreshes(t *testing.T) {
	tbl := NewTable()
	e1 := tbl.Observe("peer-a._opcua-tcp._tcp.local.", "opc.tcp://peer-a:4840", []string{"NA"}, 2)
	require.Equal(t, uint32(1), e1.ID)
	assert.Equal(t, 2, e1.ObservedInterface)

	time.Sleep(time.Millisecond)
	e1b := tbl.Observe("peer-a._opcua-tcp._tcp.local.", "opc.tcp://peer-a:4841", nil, 3)
	assert.Equal(t, e1.ID, e1b.ID, "re-observing the same name updates in place")
	assert.True(t, e1b.ObservedAt.After(e1.ObservedAt))
	assert.Equal(t, 3, e1b.ObservedInterface, "re-observing refreshes the arrival interface too")

	e2 := tbl.Observe("peer-b._opcua-tcp._tcp.local.", "opc.tcp://peer-b:4840", nil, 0)
	assert.Equal(t, uint32(2), e2.ID)

	list := tbl.List()
	assert.Len(t, list, 2)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	tbl := NewTable()
	_, ok := tbl.Get("absent")
	assert.False(t, ok)
}

// S7 — Epoch reset re-enumeration.
func TestResetEpochRestartsIDsKeepsEntries(t *testing.T) {
	tbl := NewTable()
	tbl.Observe("peer-a", "opc.tcp://a:4840", nil, 0)
	tbl.Observe("peer-b", "opc.tcp://b:4840", nil, 0)
	require.Len(t, tbl.List(), 2)

	now := time.Now()
	tbl.ResetEpoch(now)
	assert.Equal(t, now, tbl.Epoch())

	e3 := tbl.Observe("peer-c", "opc.tcp://c:4840", nil, 0)
	assert.Equal(t, uint32(1), e3.ID, "ids restart from 1 after epoch reset")
	assert.Len(t, tbl.List(), 3, "existing entries retained")
}

func TestBucketOfIsStable(t *testing.T) {
	assert.Equal(t, bucketOf("same"), bucketOf("same"))
	assert.Less(t, bucketOf("same"), uint32(hashBuckets))
}
