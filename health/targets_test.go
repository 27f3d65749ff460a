package health

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/store"
	"github.com/mlrus/openr/wire"
)

func newBareChecker(t *testing.T, opt config.HealthCheckOption, pct float64) *Checker {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	cfg := &config.NodeConfig{NodeId: "a", HealthCheckOption: opt, HealthCheckPct: pct}
	c := NewChecker(ctx, cancel, cfg, discardLogger(), store.NewUDPTransport())
	t.Cleanup(func() { cancel(context.Canceled) })
	return c
}

func TestUpdateTargetsTopologyExcludesSelf(t *testing.T) {
	c := newBareChecker(t, config.Topology, 0)
	c.nodeInfo["a"] = &NodeInfo{}
	c.nodeInfo["b"] = &NodeInfo{}
	c.nodeInfo["c"] = &NodeInfo{}
	c.updateTargets()
	assert.Equal(t, map[string]bool{"b": true, "c": true}, c.targets)
}

func TestUpdateTargetsNeighborOfNeighborExcludesSelfAndDirect(t *testing.T) {
	c := newBareChecker(t, config.NeighborOfNeighbor, 0)
	c.nodeInfo["a"] = &NodeInfo{Neighbors: []string{"b"}}
	c.nodeInfo["b"] = &NodeInfo{Neighbors: []string{"a", "c"}}
	c.nodeInfo["c"] = &NodeInfo{Neighbors: []string{"b", "d"}}
	c.nodeInfo["d"] = &NodeInfo{Neighbors: []string{"c"}}
	c.updateTargets()
	// a's neighbor is b; b's neighbors are {a, c}; excluding a itself and
	// its direct neighbor b leaves only c.
	assert.Equal(t, map[string]bool{"c": true}, c.targets)
}

func TestUpdateTargetsRandomNeverIncludesSelf(t *testing.T) {
	c := newBareChecker(t, config.Random, 100)
	c.nodeInfo["a"] = &NodeInfo{}
	c.nodeInfo["b"] = &NodeInfo{}
	c.updateTargets()
	assert.Equal(t, map[string]bool{"b": true}, c.targets)
}

func TestProcessAdjacencyDbUpdatesNeighbors(t *testing.T) {
	c := newBareChecker(t, config.Topology, 0)
	c.processDelta(store.Delta{
		AdjacencyKeyPrefix + "b": adjRecord(t, "b", "a", "c"),
	})
	assert.Equal(t, []string{"a", "c"}, c.nodeInfo["b"].Neighbors)
}

func TestProcessPrefixDbPrefersExistingTarget(t *testing.T) {
	c := newBareChecker(t, config.Topology, 0)
	c.processDelta(store.Delta{
		PrefixKeyPrefix + "b": prefixRecord(t, "b", "face:b00c::1/128", "face:b00c::2/128"),
	})
	first := c.nodeInfo["b"].IpAddress
	assert.Equal(t, netip.MustParseAddr("face:b00c::1"), first)

	// re-announcing the same set, in a different order, should not move
	// the target as long as the existing address is still present.
	c.processDelta(store.Delta{
		PrefixKeyPrefix + "b": prefixRecord(t, "b", "face:b00c::2/128", "face:b00c::1/128"),
	})
	assert.Equal(t, first, c.nodeInfo["b"].IpAddress)

	// dropping the existing address switches to the first remaining one.
	c.processDelta(store.Delta{
		PrefixKeyPrefix + "b": prefixRecord(t, "b", "face:b00c::3/128"),
	})
	assert.Equal(t, netip.MustParseAddr("face:b00c::3"), c.nodeInfo["b"].IpAddress)
}

// TestProcessPrefixDbTracksOwnerInIndex covers the prefixIndex wiring
// directly: a node's coalesced prefix announcement is discoverable by
// address lookup afterward.
func TestProcessPrefixDbTracksOwnerInIndex(t *testing.T) {
	c := newBareChecker(t, config.Topology, 0)
	c.processDelta(store.Delta{
		PrefixKeyPrefix + "b": prefixRecord(t, "b", "face:b00c::1/128"),
	})
	owner, ok := c.prefixIndex.Lookup(netip.MustParseAddr("face:b00c::1"))
	assert.True(t, ok)
	assert.Equal(t, "b", owner)
}

// TestPingAllTargetsSkipsAddressOwnedByAnotherNode guards against pinging a
// stale address a target no longer owns: if prefixIndex resolves the
// target's stored address to a different node than the target itself, the
// tick is skipped rather than pinging the wrong node.
func TestPingAllTargetsSkipsAddressOwnedByAnotherNode(t *testing.T) {
	c := newBareChecker(t, config.Topology, 0)
	c.processDelta(store.Delta{
		PrefixKeyPrefix + "b": prefixRecord(t, "b", "face:b00c::1/128"),
	})
	reassigned := netip.MustParsePrefix("face:b00c::1/128")
	c.prefixIndex.Delete(reassigned)
	c.prefixIndex.Insert(reassigned, "c")
	c.targets = map[string]bool{"b": true}

	assert.NoError(t, c.pingAllTargets())
	assert.Equal(t, uint64(0), c.nodeInfo["b"].LastValSent)
}

func adjRecord(t *testing.T, node string, neighbors ...string) store.Record {
	t.Helper()
	data, err := wire.Encode(wire.AdjacencyDb{ThisNodeName: node, Neighbors: neighbors})
	if err != nil {
		t.Fatal(err)
	}
	return store.NewRecord(1, node, data, true, store.TTLInfinite, 0)
}

func prefixRecord(t *testing.T, node string, prefixes ...string) store.Record {
	t.Helper()
	data, err := wire.Encode(wire.PrefixDb{ThisNodeName: node, Prefixes: prefixes})
	if err != nil {
		t.Fatal(err)
	}
	return store.NewRecord(1, node, data, true, store.TTLInfinite, 0)
}
