package health

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"strings"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/prefixutil"
	"github.com/mlrus/openr/store"
	"github.com/mlrus/openr/wire"
)

// listeners are the checker's two UDP endpoints (§4.5, §6): the ping socket
// every remote node's ping protocol talks to, and an optional local
// command socket serving the PEEK request.
type listeners struct {
	ping store.Listener
	cmd  store.Listener
}

// Run opens the checker's endpoints and blocks, servicing the dispatch
// channel until its context is cancelled (§5, mirroring store.Node.Run).
func (c *Checker) Run() error {
	c.Log.Info("starting health checker", "node_id", c.myNodeName)

	ping, err := c.Transport.Listen(c.Cfg.PingBindAddr(), c.onPingDatagram)
	if err != nil {
		return fmt.Errorf("listen ping: %w", err)
	}
	var cmd store.Listener
	if c.Cfg.HealthCommandAddr != "" {
		cmd, err = c.Transport.Listen(c.Cfg.HealthCommandAddr, c.onCommandDatagram)
		if err != nil {
			return fmt.Errorf("listen health command: %w", err)
		}
	}
	c.lst = &listeners{ping: ping, cmd: cmd}

	c.RepeatTask(func(ch *Checker) error { return ch.pingAllTargets() }, c.Cfg.PingInterval())

	defer c.shutdown()
	for {
		select {
		case fun, ok := <-c.dispatchChannel:
			if !ok {
				return context.Cause(c.Context)
			}
			if err := fun(c); err != nil {
				c.Log.Error("dispatch error", "error", err)
			}
		case <-c.Context.Done():
			return context.Cause(c.Context)
		}
	}
}

func (c *Checker) shutdown() {
	if c.lst.ping != nil {
		_ = c.lst.ping.Close()
	}
	if c.lst.cmd != nil {
		_ = c.lst.cmd.Close()
	}
	c.Log.Info("health checker stopped")
}

// AttachTo wires the checker to node's in-process publish feed — the same
// "intra-host subscriber" hook store.Node.Subscribe documents — and seeds
// the node table from the store's current adjacency/prefix contents before
// any live update can arrive, mirroring the source's initial
// dumpAllWithPrefix-then-subscribe sequence.
func (c *Checker) AttachTo(node *store.Node) error {
	res, err := node.DispatchWait(func(nd *store.Node) (any, error) {
		nd.Subscribe(c.onDelta)
		merged := make(map[string]wire.Value)
		adj := nd.KeyDump(wire.KeyDumpRequest{Prefix: AdjacencyKeyPrefix, HasPrefix: true})
		for k, v := range adj.KeyVals {
			merged[k] = v
		}
		pfx := nd.KeyDump(wire.KeyDumpRequest{Prefix: PrefixKeyPrefix, HasPrefix: true})
		for k, v := range pfx.KeyVals {
			merged[k] = v
		}
		return merged, nil
	})
	if err != nil {
		return fmt.Errorf("seed from store: %w", err)
	}
	seed, _ := res.(map[string]wire.Value)
	if len(seed) == 0 {
		return nil
	}
	delta := make(store.Delta, len(seed))
	for k, v := range seed {
		delta[k] = store.Record{
			Version:      v.Version,
			OriginatorId: v.OriginatorId,
			Value:        v.Value,
			HasValue:     v.HasValue,
			TtlMs:        v.TtlMs,
			TtlVersion:   v.TtlVersion,
			Hash:         v.Hash,
		}
	}
	c.onDelta(delta)
	return nil
}

func (c *Checker) onDelta(delta store.Delta) {
	c.Dispatch(func(ch *Checker) error {
		ch.processDelta(delta)
		return nil
	})
}

func (c *Checker) processDelta(delta store.Delta) {
	topologyChanged := false
	for key, rec := range delta {
		if rec.Deleted() || !rec.HasValue {
			continue
		}
		switch {
		case strings.HasPrefix(key, AdjacencyKeyPrefix):
			var db wire.AdjacencyDb
			if err := wire.Decode(rec.Value, &db); err != nil {
				c.Log.Warn("health: malformed adjacency db", "key", key, "error", err)
				continue
			}
			c.processAdjacencyDb(db)
			topologyChanged = true
		case strings.HasPrefix(key, PrefixKeyPrefix):
			var db wire.PrefixDb
			if err := wire.Decode(rec.Value, &db); err != nil {
				c.Log.Warn("health: malformed prefix db", "key", key, "error", err)
				continue
			}
			c.processPrefixDb(db)
		}
	}
	if topologyChanged {
		c.updateTargets()
	}
}

func (c *Checker) processAdjacencyDb(db wire.AdjacencyDb) {
	info := c.infoFor(db.ThisNodeName)
	info.Neighbors = append([]string(nil), db.Neighbors...)
}

// processPrefixDb keeps the existing ping target if it is still announced,
// otherwise switches to the first IPv6 prefix in the new announcement
// (§4.5 "Prefix selection for a remote node"). Announced prefixes are
// coalesced before use, the same CIDR aggregation state/config.go applies
// to allocations, and the coalesced set replaces the node's entries in
// prefixIndex so pingAllTargets can confirm an address is still owned by
// the node it is about to ping.
func (c *Checker) processPrefixDb(db wire.PrefixDb) {
	info := c.infoFor(db.ThisNodeName)

	var parsed []netip.Prefix
	for _, raw := range db.Prefixes {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			c.Log.Warn("health: malformed prefix announcement", "node", db.ThisNodeName, "prefix", raw, "error", err)
			continue
		}
		parsed = append(parsed, p)
	}
	coalesced := prefixutil.CoalescePrefixes(parsed)

	for _, p := range info.Prefixes {
		c.prefixIndex.Delete(p)
	}
	info.Prefixes = coalesced
	for _, p := range coalesced {
		if owner, ok := c.prefixIndex.Lookup(p.Addr()); ok && owner != db.ThisNodeName {
			c.Log.Warn("health: prefix ownership conflict", "prefix", p, "claimed_by", db.ThisNodeName, "previous_owner", owner)
		}
		c.prefixIndex.Insert(p, db.ThisNodeName)
	}

	var v6 []netip.Addr
	for _, p := range coalesced {
		if p.Addr().Is6() && !p.Addr().Is4In6() {
			v6 = append(v6, p.Addr())
		}
	}
	if info.HasIpAddress {
		for _, addr := range v6 {
			if addr == info.IpAddress {
				return
			}
		}
	}
	if len(v6) > 0 {
		info.IpAddress = v6[0]
		info.HasIpAddress = true
	}
}

// updateTargets recomputes the ping set under the configured selection
// policy (§4.5), run on every adjacency-DB update.
func (c *Checker) updateTargets() {
	targets := make(map[string]bool)
	switch c.Cfg.HealthCheckOption {
	case config.NeighborOfNeighbor:
		me := c.infoFor(c.myNodeName)
		direct := make(map[string]bool, len(me.Neighbors))
		for _, n := range me.Neighbors {
			direct[n] = true
		}
		for _, n := range me.Neighbors {
			if info, ok := c.nodeInfo[n]; ok {
				for _, nn := range info.Neighbors {
					targets[nn] = true
				}
			}
		}
		delete(targets, c.myNodeName)
		for n := range direct {
			delete(targets, n)
		}
	case config.Topology:
		for name := range c.nodeInfo {
			targets[name] = true
		}
		delete(targets, c.myNodeName)
	case config.Random:
		for name := range c.nodeInfo {
			if name == c.myNodeName {
				continue
			}
			if rand.Float64()*100 < c.Cfg.HealthCheckPct {
				targets[name] = true
			}
		}
	default:
		c.Log.Warn("health: health_check_option not configured, no targets selected")
	}
	c.targets = targets
}
