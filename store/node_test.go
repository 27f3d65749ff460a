package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/crypto"
	"github.com/mlrus/openr/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNode(t *testing.T, nodeId string, localCmd, globalCmd, localPub, globalPub string, peers []config.PeerSpec) (*Node, context.CancelFunc) {
	t.Helper()
	ctx, cancelCause := context.WithCancelCause(context.Background())
	cancel := func() { cancelCause(context.Canceled) }
	cfg := &config.NodeConfig{
		NodeId:            nodeId,
		LocalCommandAddr:  localCmd,
		GlobalCommandAddr: globalCmd,
		LocalPublishAddr:  localPub,
		GlobalPublishAddr: globalPub,
		InitialPeers:      peers,
		DbSyncIntervalSec: 3600, // keep anti-entropy out of the way of flooding assertions
	}
	n := NewNode(ctx, cancelCause, cfg, discardLogger(), NewUDPTransport(), crypto.Keypair{}, false)
	go func() {
		_ = n.Run()
	}()
	t.Cleanup(cancel)
	return n, cancel
}

// TestFloodingReplicatesAcrossTwoNodes exercises flooding end to end over
// real UDP sockets: A inserts a record, floods it to B, and B converges to
// the same record. Scenario 1's conflict rule itself is covered by
// TestMergeConflictResolutionByOriginator.
func TestFloodingReplicatesAcrossTwoNodes(t *testing.T) {
	a, cancelA := newTestNode(t, "a",
		"127.0.0.1:19101", "127.0.0.1:19102", "127.0.0.1:19103", "127.0.0.1:19104",
		[]config.PeerSpec{{Name: "b", PublishAddr: "127.0.0.1:19114", CommandAddr: "127.0.0.1:19112"}})
	defer cancelA()
	b, cancelB := newTestNode(t, "b",
		"127.0.0.1:19111", "127.0.0.1:19112", "127.0.0.1:19113", "127.0.0.1:19114",
		[]config.PeerSpec{{Name: "a", PublishAddr: "127.0.0.1:19104", CommandAddr: "127.0.0.1:19102"}})
	defer cancelB()

	// The first DispatchWait only returns once each node's loop is up and
	// its listeners are bound, so this also serves as a readiness barrier.
	_, err := a.DispatchWait(func(nd *Node) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = b.DispatchWait(func(nd *Node) (any, error) { return nil, nil })
	require.NoError(t, err)

	_, err = a.DispatchWait(func(nd *Node) (any, error) {
		rec := NewRecord(1, "a", []byte("hello"), true, int64(TTLInfinite), 0)
		nd.store["greeting"] = rec
		delta := Delta{"greeting": rec}
		nd.notify(delta)
		nd.publishLocal(delta)
		nd.floodDelta(delta, "a", nil)
		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := b.DispatchWait(func(nd *Node) (any, error) {
			_, ok := nd.store["greeting"]
			return ok, nil
		})
		if err != nil {
			return false
		}
		ok, _ := res.(bool)
		return ok
	}, 2*time.Second, 20*time.Millisecond, "b never received the flooded record")

	res, err := b.DispatchWait(func(nd *Node) (any, error) {
		return nd.store["greeting"], nil
	})
	require.NoError(t, err)
	rec := res.(Record)
	assert.Equal(t, "a", rec.OriginatorId)
	assert.Equal(t, []byte("hello"), rec.Value)
}

// TestAntiEntropyHealsLostDeletion covers the §8 Convergence requirement
// that anti-entropy can carry a deletion, not just a live value: a's delete
// of a key that b still holds live (modeling a delete flood b never
// received) is picked up on b's next db-sync tick, via KEY_DUMP_DIFF rather
// than the tombstone-filtering KEY_GET.
func TestAntiEntropyHealsLostDeletion(t *testing.T) {
	a, cancelA := newTestNode(t, "a",
		"127.0.0.1:19301", "127.0.0.1:19302", "127.0.0.1:19303", "127.0.0.1:19304",
		[]config.PeerSpec{{Name: "b", PublishAddr: "127.0.0.1:19314", CommandAddr: "127.0.0.1:19312"}})
	defer cancelA()
	b, cancelB := newTestNode(t, "b",
		"127.0.0.1:19311", "127.0.0.1:19312", "127.0.0.1:19313", "127.0.0.1:19314",
		[]config.PeerSpec{{Name: "a", PublishAddr: "127.0.0.1:19304", CommandAddr: "127.0.0.1:19302"}})
	defer cancelB()

	_, err := a.DispatchWait(func(nd *Node) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = b.DispatchWait(func(nd *Node) (any, error) { return nil, nil })
	require.NoError(t, err)

	live := NewRecord(1, "a", []byte("v1"), true, TTLInfinite, 0)
	_, err = a.DispatchWait(func(nd *Node) (any, error) { nd.store["k"] = live; return nil, nil })
	require.NoError(t, err)
	_, err = b.DispatchWait(func(nd *Node) (any, error) { nd.store["k"] = live; return nil, nil })
	require.NoError(t, err)

	// a deletes k locally, without flooding, modeling a delete flood that b
	// never received.
	tombstone := NewRecord(2, "a", nil, false, 0, 1)
	_, err = a.DispatchWait(func(nd *Node) (any, error) { nd.store["k"] = tombstone; return nil, nil })
	require.NoError(t, err)

	// b's only peer is a, so a db-sync tick deterministically pulls from a.
	_, err = b.DispatchWait(func(nd *Node) (any, error) { return nil, nd.tickDbSync() })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := b.DispatchWait(func(nd *Node) (any, error) { return nd.store["k"], nil })
		if err != nil {
			return false
		}
		rec, _ := res.(Record)
		return rec.Deleted()
	}, 2*time.Second, 20*time.Millisecond, "b never converged on a's deletion via anti-entropy")
}

// TestTTLExpiryEvictsKey covers Scenario 2: a record with a short finite
// TTL stops being returned by KEY_GET after it expires.
func TestTTLExpiryEvictsKey(t *testing.T) {
	a, cancel := newTestNode(t, "solo",
		"127.0.0.1:19201", "127.0.0.1:19202", "127.0.0.1:19203", "127.0.0.1:19204", nil)
	defer cancel()

	var observed []Delta
	_, err := a.DispatchWait(func(nd *Node) (any, error) {
		nd.Subscribe(func(d Delta) { observed = append(observed, d) })
		rec := wire.Value{Version: 1, OriginatorId: "solo", Value: []byte("v"), HasValue: true, TtlMs: 150}
		rec.Hash = ComputeHash(rec.Version, rec.OriginatorId, rec.Value, true)
		reply := nd.handleKeySet(wire.KeySetRequest{Records: map[string]wire.Value{"k": rec}})
		return reply, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := a.DispatchWait(func(nd *Node) (any, error) {
			reply := nd.handleKeyGet(wire.KeyGetRequest{Keys: []string{"k"}})
			_, present := reply.KeyVals["k"]
			return present, nil
		})
		if err != nil {
			return false
		}
		present, _ := res.(bool)
		return !present
	}, 2*time.Second, 20*time.Millisecond, "key did not expire")

	var sawTombstone bool
	for _, d := range observed {
		if r, ok := d["k"]; ok && r.Deleted() {
			sawTombstone = true
		}
	}
	assert.True(t, sawTombstone, "subscriber never observed a delete publication for the expired key")
}

// TestTTLRefreshExtendsLifetime covers Scenario 3: a TTL-only refresh with a
// higher ttl_version keeps the key alive past its original deadline.
func TestTTLRefreshExtendsLifetime(t *testing.T) {
	a, cancel := newTestNode(t, "solo2",
		"127.0.0.1:19211", "127.0.0.1:19212", "127.0.0.1:19213", "127.0.0.1:19214", nil)
	defer cancel()

	_, err := a.DispatchWait(func(nd *Node) (any, error) {
		v := wire.Value{Version: 1, OriginatorId: "solo2", Value: []byte("v"), HasValue: true, TtlMs: 300, TtlVersion: 0}
		v.Hash = ComputeHash(v.Version, v.OriginatorId, v.Value, true)
		nd.handleKeySet(wire.KeySetRequest{Records: map[string]wire.Value{"k": v}})
		return nil, nil
	})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	_, err = a.DispatchWait(func(nd *Node) (any, error) {
		local := nd.store["k"]
		refresh := wire.Value{
			Version:      local.Version,
			OriginatorId: local.OriginatorId,
			HasValue:     false,
			TtlMs:        300,
			TtlVersion:   1,
			Hash:         local.Hash,
		}
		nd.handleKeySet(wire.KeySetRequest{Records: map[string]wire.Value{"k": refresh}})
		return nil, nil
	})
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond) // 400ms total: past the original 300ms deadline
	res, err := a.DispatchWait(func(nd *Node) (any, error) {
		reply := nd.handleKeyGet(wire.KeyGetRequest{Keys: []string{"k"}})
		_, present := reply.KeyVals["k"]
		return present, nil
	})
	require.NoError(t, err)
	assert.True(t, res.(bool), "key expired despite the TTL refresh")

	require.Eventually(t, func() bool {
		res, err := a.DispatchWait(func(nd *Node) (any, error) {
			reply := nd.handleKeyGet(wire.KeyGetRequest{Keys: []string{"k"}})
			_, present := reply.KeyVals["k"]
			return present, nil
		})
		if err != nil {
			return false
		}
		present, _ := res.(bool)
		return !present
	}, 2*time.Second, 20*time.Millisecond, "key never expired at the refreshed deadline")
}
