package health

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/store"
	"github.com/mlrus/openr/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestChecker builds a Checker bound to bindAddr, sharing a single
// fixed ping port across all test nodes: production nodes agree on
// udp_ping_port fabric-wide and are distinguished by IP address, so the
// test models two nodes as two loopback addresses on the same port
// instead of two ports.
func newTestChecker(t *testing.T, nodeId, bindAddr string, pingPort uint16, pingIntervalSec float64) *Checker {
	t.Helper()
	ctx, cancelCause := context.WithCancelCause(context.Background())
	cfg := &config.NodeConfig{
		NodeId:             nodeId,
		HealthPingBindAddr: bindAddr,
		UdpPingPort:        pingPort,
		HealthCheckOption:  config.Topology,
		PingIntervalSec:    pingIntervalSec,
	}
	c := NewChecker(ctx, cancelCause, cfg, discardLogger(), store.NewUDPTransport())
	go func() { _ = c.Run() }()
	t.Cleanup(func() { cancelCause(context.Canceled) })
	return c
}

// TestPingProtocolAccumulatesAcks covers Scenario 5: with a fast ping
// interval, a live target's acks reach at least 2 within a few ticks.
func TestPingProtocolAccumulatesAcks(t *testing.T) {
	const port = 19301
	a := newTestChecker(t, "a", "127.0.0.1:19301", port, 0.2)
	b := newTestChecker(t, "b", "127.0.0.2:19301", port, 0.2)

	_, err := a.DispatchWait(func(*Checker) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = b.DispatchWait(func(*Checker) (any, error) { return nil, nil })
	require.NoError(t, err)

	_, err = a.DispatchWait(func(ch *Checker) (any, error) {
		ch.nodeInfo["b"] = &NodeInfo{IpAddress: netip.MustParseAddr("127.0.0.2"), HasIpAddress: true}
		ch.targets = map[string]bool{"b": true}
		return nil, nil
	})
	require.NoError(t, err)
	_, err = b.DispatchWait(func(ch *Checker) (any, error) {
		ch.nodeInfo["a"] = &NodeInfo{IpAddress: netip.MustParseAddr("127.0.0.1"), HasIpAddress: true}
		ch.targets = map[string]bool{"a": true}
		return nil, nil
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := a.DispatchWait(func(ch *Checker) (any, error) {
			return ch.nodeInfo["b"].LastAckFromNode, nil
		})
		if err != nil {
			return false
		}
		seq, _ := res.(uint64)
		return seq >= 2
	}, 3*time.Second, 20*time.Millisecond, "a never accumulated 2 acks from b")

	res, err := a.DispatchWait(func(ch *Checker) (any, error) { return ch.Peek(), nil })
	require.NoError(t, err)
	reply := res.(wire.HealthCheckerPeekReply)
	nodeB, ok := reply.Nodes["b"]
	require.True(t, ok, "peek reply missing node b")
	require.GreaterOrEqual(t, nodeB.LastAckFromNode, uint64(2))
}
