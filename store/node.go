package store

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"strings"
	"time"

	"github.com/mlrus/openr/crypto"
	"github.com/mlrus/openr/wire"
)

const fullSyncTickInterval = time.Second

// Addr endpoints a Node listens on, taken from config.NodeConfig at
// construction (§6).
type listeners struct {
	localCmd    Listener
	globalCmd   Listener
	localPub    Listener
	globalPub   Listener
	ttlTimer    *time.Timer
	subscribers []netip.AddrPort
}

// Run opens the node's four endpoints and blocks, servicing the dispatch
// channel until its context is cancelled (§5, mirroring the teacher's
// MainLoop). It returns the reason the context was cancelled.
func (n *Node) Run() error {
	n.Log.Info("starting kvstore", "node_id", n.Cfg.NodeId)

	lc, err := n.Transport.Listen(n.Cfg.LocalCommandAddr, n.onCommandDatagram(false))
	if err != nil {
		return fmt.Errorf("listen local command: %w", err)
	}
	gc, err := n.Transport.Listen(n.Cfg.GlobalCommandAddr, n.onCommandDatagram(true))
	if err != nil {
		return fmt.Errorf("listen global command: %w", err)
	}
	lp, err := n.Transport.Listen(n.Cfg.LocalPublishAddr, n.onLocalPublishDatagram)
	if err != nil {
		return fmt.Errorf("listen local publish: %w", err)
	}
	var gp Listener
	if n.Cfg.GlobalPublishAddr != "" {
		gp, err = n.Transport.Listen(n.Cfg.GlobalPublishAddr, n.onGlobalPublishDatagram)
		if err != nil {
			return fmt.Errorf("listen global publish: %w", err)
		}
	}
	n.lst = &listeners{localCmd: lc, globalCmd: gc, localPub: lp, globalPub: gp}

	for _, p := range n.Cfg.InitialPeers {
		spec := wire.PeerSpec{PublishAddr: p.PublishAddr, CommandAddr: p.CommandAddr}
		if p.PublicKey != "" {
			var pub crypto.PublicKey
			if err := pub.UnmarshalText([]byte(p.PublicKey)); err != nil {
				n.Log.Warn("initial peer: bad public_key", "peer", p.Name, "error", err)
			} else {
				spec.PublicKey = pub[:]
			}
		}
		n.addPeer(p.Name, spec)
	}

	n.RepeatTask(func(nd *Node) error { return nd.tickFullSync() }, fullSyncTickInterval)
	n.RepeatTask(func(nd *Node) error { return nd.tickDbSync() }, n.Cfg.DbSyncInterval())

	n.started = true
	defer n.shutdown()

	for {
		select {
		case fun, ok := <-n.dispatchChannel:
			if !ok {
				return context.Cause(n.Context)
			}
			if err := fun(n); err != nil {
				n.Log.Error("dispatch error", "error", err)
			}
		case <-n.Context.Done():
			return context.Cause(n.Context)
		}
	}
}

func (n *Node) shutdown() {
	if n.lst.ttlTimer != nil {
		n.lst.ttlTimer.Stop()
	}
	for _, l := range []Listener{n.lst.localCmd, n.lst.globalCmd, n.lst.localPub, n.lst.globalPub} {
		if l != nil {
			_ = l.Close()
		}
	}
	n.Log.Info("kvstore stopped")
}

// -- command datagram handling --------------------------------------------

func (n *Node) onCommandDatagram(global bool) func(netip.AddrPort, []byte) {
	return func(from netip.AddrPort, payload []byte) {
		var listener Listener
		n.Dispatch(func(nd *Node) error {
			if global {
				listener = nd.lst.globalCmd
			} else {
				listener = nd.lst.localCmd
			}
			return nd.handleCommandDatagram(listener, from, payload)
		})
	}
}

func (n *Node) handleCommandDatagram(listener Listener, from netip.AddrPort, payload []byte) error {
	var transit wire.Transit
	if err := wire.Decode(payload, &transit); err != nil {
		n.Log.Warn("command: malformed datagram", "error", err)
		return nil
	}
	channel, err := n.channelFor(transit)
	if err != nil {
		n.Log.Warn("command: rejected", "from", transit.From, "error", err)
		return nil
	}
	env, _, err := n.unwrapEnvelope(payload, channel)
	if err != nil {
		n.Log.Warn("command: decode failed", "from", transit.From, "error", err)
		return nil
	}
	reply, kind, err := n.dispatchCommand(env)
	if err != nil {
		n.Log.Warn("command: handler failed", "kind", env.Kind, "error", err)
		return nil
	}
	if reply == nil {
		return nil
	}
	out, err := n.wrapEnvelope(kind, reply, channel)
	if err != nil {
		n.Log.Error("command: encode reply failed", "error", err)
		return nil
	}
	if err := listener.SendTo(from, out); err != nil {
		n.Log.Warn("command: reply send failed", "error", err)
	}
	return nil
}

// channelFor resolves the crypto.Channel to use for an inbound Transit,
// looking up the claimed sender in the peer table. Unencrypted transits
// need none.
func (n *Node) channelFor(transit wire.Transit) (*crypto.Channel, error) {
	if !transit.Encrypted {
		return nil, nil
	}
	peer, ok := n.peers[transit.From]
	if !ok || peer.Channel == nil {
		return nil, fmt.Errorf("encrypted message from unrecognized or untrusted peer %q", transit.From)
	}
	return peer.Channel, nil
}

func (n *Node) dispatchCommand(env wire.Envelope) (any, string, error) {
	switch env.Kind {
	case wire.KindKeySet:
		var req wire.KeySetRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handleKeySet(req), wire.KindKeySet, nil
	case wire.KindKeyGet:
		var req wire.KeyGetRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handleKeyGet(req), wire.KindKeyGet, nil
	case wire.KindKeyDump:
		var req wire.KeyDumpRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handleKeyDump(req), wire.KindKeyDump, nil
	case wire.KindHashDump:
		var req wire.HashDumpRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handleHashDump(req), wire.KindHashDump, nil
	case wire.KindKeyDumpDiff:
		var req wire.KeyDumpDiffRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handleKeyDumpDiff(req), wire.KindKeyDumpDiff, nil
	case wire.KindPeerAdd:
		var req wire.PeerAddRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handlePeerAdd(req), wire.KindPeerAdd, nil
	case wire.KindPeerDel:
		var req wire.PeerDelRequest
		if err := wire.Decode(env.Payload, &req); err != nil {
			return nil, "", err
		}
		return n.handlePeerDel(req), wire.KindPeerDel, nil
	case wire.KindPeerDump:
		return n.handlePeerDump(), wire.KindPeerDump, nil
	default:
		return nil, "", fmt.Errorf("unknown command kind %q", env.Kind)
	}
}

// -- publish datagram handling ---------------------------------------------

func (n *Node) onGlobalPublishDatagram(_ netip.AddrPort, payload []byte) {
	n.Dispatch(func(nd *Node) error { return nd.handleGlobalPublishDatagram(payload) })
}

func (n *Node) handleGlobalPublishDatagram(payload []byte) error {
	var transit wire.Transit
	if err := wire.Decode(payload, &transit); err != nil {
		n.Log.Warn("publish: malformed datagram", "error", err)
		return nil
	}
	channel, err := n.channelFor(transit)
	if err != nil {
		n.Log.Warn("publish: rejected", "from", transit.From, "error", err)
		return nil
	}
	env, _, err := n.unwrapEnvelope(payload, channel)
	if err != nil {
		n.Log.Warn("publish: decode failed", "from", transit.From, "error", err)
		return nil
	}
	if env.Kind != wire.KindPublication {
		n.Log.Warn("publish: unexpected kind", "kind", env.Kind)
		return nil
	}
	var pub wire.Publication
	if err := wire.Decode(env.Payload, &pub); err != nil {
		n.Log.Warn("publish: decode publication failed", "error", err)
		return nil
	}
	return n.onIncomingPublication(pub)
}

func (n *Node) onLocalPublishDatagram(from netip.AddrPort, _ []byte) {
	n.Dispatch(func(nd *Node) error {
		nd.registerLocalSubscriber(from)
		return nil
	})
}

func (n *Node) registerLocalSubscriber(addr netip.AddrPort) {
	for _, a := range n.lst.subscribers {
		if a == addr {
			return
		}
	}
	n.lst.subscribers = append(n.lst.subscribers, addr)
}

// -- envelope wrapping -------------------------------------------------

func (n *Node) wrapEnvelope(kind string, msg any, channel *crypto.Channel) ([]byte, error) {
	envBytes, err := wire.EncodeEnvelope(kind, msg)
	if err != nil {
		return nil, err
	}
	payload := envBytes
	encrypted := channel != nil
	if encrypted {
		payload, err = channel.Seal(envBytes)
		if err != nil {
			return nil, fmt.Errorf("seal: %w", err)
		}
	}
	return wire.Encode(wire.Transit{From: n.Cfg.NodeId, Encrypted: encrypted, Payload: payload})
}

func (n *Node) unwrapEnvelope(data []byte, channel *crypto.Channel) (wire.Envelope, string, error) {
	var transit wire.Transit
	if err := wire.Decode(data, &transit); err != nil {
		return wire.Envelope{}, "", fmt.Errorf("decode transit: %w", err)
	}
	envBytes := transit.Payload
	if transit.Encrypted {
		if channel == nil {
			return wire.Envelope{}, transit.From, fmt.Errorf("no channel to open message from %q", transit.From)
		}
		var err error
		envBytes, err = channel.Open(transit.Payload)
		if err != nil {
			return wire.Envelope{}, transit.From, fmt.Errorf("open: %w", err)
		}
	}
	env, err := wire.DecodeEnvelope(envBytes)
	return env, transit.From, err
}

// -- command handlers --------------------------------------------------

func (n *Node) handleKeySet(req wire.KeySetRequest) wire.KeySetReply {
	incoming := recordsFromWire(req.Records)
	var delta Delta
	if req.Force {
		delta = make(Delta, len(incoming))
		for k, r := range incoming {
			n.store[k] = r
			delta[k] = r
		}
	} else {
		delta = merge(n.store, incoming, n.Log)
	}
	n.notify(delta)
	if len(delta) > 0 {
		n.armTTLForDelta(delta)
		n.publishLocal(delta)
		n.floodDelta(delta, n.Cfg.NodeId, append([]string{}, req.Floodlist...))
	}
	return wire.KeySetReply{Delta: buildPublication(delta, n.Cfg.NodeId, nil)}
}

func (n *Node) handleKeyGet(req wire.KeyGetRequest) wire.KeyGetReply {
	kv := make(map[string]wire.Value, len(req.Keys))
	for _, k := range req.Keys {
		if r, ok := n.store[k]; ok && !r.Deleted() {
			kv[k] = r.toWire()
		}
	}
	return wire.KeyGetReply{KeyVals: kv}
}

// handleKeyDump serves both full sync and the health checker's initial
// adjacency/prefix seed. Tombstones are included, not just live values:
// a peer doing a full sync must learn about deletions the same as it
// learns about live keys, or it can never converge on one (§8 Convergence).
func (n *Node) handleKeyDump(req wire.KeyDumpRequest) wire.KeyDumpReply {
	kv := make(map[string]wire.Value)
	for k, r := range n.store {
		if req.HasPrefix && !strings.HasPrefix(k, req.Prefix) {
			continue
		}
		kv[k] = r.toWire()
	}
	return wire.KeyDumpReply{KeyVals: kv}
}

func (n *Node) handleHashDump(req wire.HashDumpRequest) wire.HashDumpReply {
	var summaries []wire.KeySummary
	for k, r := range n.store {
		if req.HasPrefix && !strings.HasPrefix(k, req.Prefix) {
			continue
		}
		summaries = append(summaries, r.summary(k))
	}
	return wire.HashDumpReply{Summaries: summaries}
}

// handleKeyDumpDiff computes, from the local map, the records the summaries'
// owner is missing or holds stale versions of (§4.3). It does not mutate.
func (n *Node) handleKeyDumpDiff(req wire.KeyDumpDiffRequest) wire.KeyDumpDiffReply {
	kv := make(map[string]wire.Value)
	for _, s := range req.Summaries {
		local, ok := n.store[s.Key]
		if !ok {
			continue
		}
		cmp := local.tuple().compare(tuple{s.Version, s.OriginatorId})
		switch {
		case cmp > 0:
			kv[s.Key] = local.toWire()
		case cmp == 0 && local.TtlVersion > s.TtlVersion:
			kv[s.Key] = local.toWire()
		}
	}
	return wire.KeyDumpDiffReply{KeyVals: kv}
}

func (n *Node) handlePeerAdd(req wire.PeerAddRequest) wire.AckReply {
	for name, spec := range req.Peers {
		n.addPeer(name, spec)
	}
	return wire.AckReply{}
}

func (n *Node) addPeer(name string, spec wire.PeerSpec) {
	peer := &Peer{Name: name, PublishAddr: spec.PublishAddr, CommandAddr: spec.CommandAddr}
	if n.Cfg.Encrypt && n.HasKeys && len(spec.PublicKey) == 32 {
		var pub crypto.PublicKey
		copy(pub[:], spec.PublicKey)
		peer.Channel = crypto.NewChannel(n.Keypair, pub)
	}
	n.peers[name] = peer
	n.syncPending[name] = newBackoffState(time.Now())
}

func (n *Node) handlePeerDel(req wire.PeerDelRequest) wire.AckReply {
	for _, name := range req.Names {
		delete(n.peers, name)
		delete(n.syncPending, name)
	}
	return wire.AckReply{}
}

func (n *Node) handlePeerDump() wire.PeerDumpReply {
	infos := make([]wire.PeerInfo, 0, len(n.peers))
	for name, p := range n.peers {
		_, pending := n.syncPending[name]
		infos = append(infos, wire.PeerInfo{
			Name:        name,
			PublishAddr: p.PublishAddr,
			CommandAddr: p.CommandAddr,
			SyncPending: pending,
		})
	}
	return wire.PeerDumpReply{Peers: infos}
}

// -- flooding ------------------------------------------------------------

func recordsFromWire(kv map[string]wire.Value) map[string]Record {
	out := make(map[string]Record, len(kv))
	for k, v := range kv {
		out[k] = recordFromWire(v)
	}
	return out
}

func buildPublication(delta Delta, originator string, floodlist []string) wire.Publication {
	kv := make(map[string]wire.Value, len(delta))
	var expired []string
	for k, r := range delta {
		kv[k] = r.toWire()
		if r.Deleted() {
			expired = append(expired, k)
		}
	}
	return wire.Publication{
		KeyVals:       kv,
		ExpiredKeys:   expired,
		NodeIds:       floodlist,
		Originator:    originator,
		HasOriginator: true,
	}
}

// floodDelta sends delta to every peer not already in floodlist, tagging the
// publication with originator so recipients can detect it looping back
// (§4.3 "Flooding discipline").
func (n *Node) floodDelta(delta Delta, originator string, floodlist []string) {
	if len(delta) == 0 || n.lst.globalPub == nil {
		return
	}
	visited := make(map[string]bool, len(floodlist))
	for _, f := range floodlist {
		visited[f] = true
	}
	newFloodlist := append(append([]string{}, floodlist...), n.Cfg.NodeId)
	pub := buildPublication(delta, originator, newFloodlist)

	for name, peer := range n.peers {
		if visited[name] || name == originator {
			continue
		}
		out, err := n.wrapEnvelope(wire.KindPublication, pub, peer.Channel)
		if err != nil {
			n.Log.Error("flood: encode failed", "peer", name, "error", err)
			continue
		}
		addr, err := netip.ParseAddrPort(peer.PublishAddr)
		if err != nil {
			n.Log.Error("flood: bad publish addr", "peer", name, "error", err)
			continue
		}
		if err := n.lst.globalPub.SendTo(addr, out); err != nil {
			n.Log.Warn("flood: send failed", "peer", name, "error", err)
		}
	}
}

func (n *Node) publishLocal(delta Delta) {
	if len(delta) == 0 || len(n.lst.subscribers) == 0 {
		return
	}
	pub := buildPublication(delta, n.Cfg.NodeId, nil)
	out, err := n.wrapEnvelope(wire.KindPublication, pub, nil)
	if err != nil {
		n.Log.Error("publish local: encode failed", "error", err)
		return
	}
	for _, addr := range n.lst.subscribers {
		if err := n.lst.localPub.SendTo(addr, out); err != nil {
			n.Log.Warn("publish local: send failed", "error", err)
		}
	}
}

// onIncomingPublication merges a peer-flooded publication and, if it
// changed anything, forwards it on (§4.3 flooding discipline, anti-loop).
func (n *Node) onIncomingPublication(pub wire.Publication) error {
	if pub.HasOriginator && pub.Originator == n.Cfg.NodeId {
		return nil
	}
	incoming := recordsFromWire(pub.KeyVals)
	delta := merge(n.store, incoming, n.Log)
	n.notify(delta)
	if len(delta) == 0 {
		return nil
	}
	n.armTTLForDelta(delta)
	n.publishLocal(delta)
	origin := n.Cfg.NodeId
	if pub.HasOriginator {
		origin = pub.Originator
	}
	n.floodDelta(delta, origin, pub.NodeIds)
	return nil
}

// -- TTL eviction ----------------------------------------------------------

func (n *Node) armTTLForDelta(delta Delta) {
	now := time.Now()
	changed := false
	for k, r := range delta {
		if r.TtlMs > 0 {
			n.ttl.Push(k, r.Version, r.TtlVersion, now.Add(time.Duration(r.TtlMs)*time.Millisecond))
			changed = true
		}
	}
	if changed {
		n.rearmTTLTimer()
	}
}

func (n *Node) rearmTTLTimer() {
	if n.lst.ttlTimer != nil {
		n.lst.ttlTimer.Stop()
	}
	deadline, ok := n.ttl.PeekDeadline()
	if !ok {
		return
	}
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	n.lst.ttlTimer = time.AfterFunc(delay, func() {
		n.Dispatch(func(nd *Node) error { return nd.onTTLFire() })
	})
}

func (n *Node) onTTLFire() error {
	due := n.ttl.PopExpired(time.Now(), func(key string, version, ttlVersion uint64) bool {
		r, ok := n.store[key]
		return ok && r.Version == version && r.TtlVersion == ttlVersion && r.TtlMs > 0
	})
	delta := make(Delta, len(due))
	for _, e := range due {
		r := n.store[e.Key]
		tomb := Record{
			Version:      r.Version,
			OriginatorId: r.OriginatorId,
			HasValue:     false,
			TtlMs:        0,
			TtlVersion:   r.TtlVersion,
			Hash:         r.Hash,
		}
		n.store[e.Key] = tomb
		delta[e.Key] = tomb
	}
	n.notify(delta)
	if len(delta) > 0 {
		n.publishLocal(delta)
		n.floodDelta(delta, n.Cfg.NodeId, nil)
	}
	n.rearmTTLTimer()
	return nil
}

// -- peer sync controller (§4.4) -------------------------------------------

func (n *Node) tickFullSync() error {
	now := time.Now()
	for name, b := range n.syncPending {
		if !b.due(now) {
			continue
		}
		peer, ok := n.peers[name]
		if !ok {
			delete(n.syncPending, name)
			continue
		}
		b.inFlight = true
		go n.requestFullSync(name, peer)
	}
	return nil
}

func (n *Node) requestFullSync(name string, peer *Peer) {
	ctx, cancel := context.WithTimeout(n.Context, defaultRequestTimeout)
	defer cancel()
	replyPayload, err := n.sendCommand(ctx, peer, wire.KindKeyDump, wire.KeyDumpRequest{})
	if err != nil {
		n.Dispatch(func(nd *Node) error { return nd.onFullSyncFailure(name, err) })
		return
	}
	var reply wire.KeyDumpReply
	if err := wire.Decode(replyPayload, &reply); err != nil {
		n.Dispatch(func(nd *Node) error { return nd.onFullSyncFailure(name, err) })
		return
	}
	n.Dispatch(func(nd *Node) error { return nd.onFullSyncSuccess(name, reply) })
}

func (n *Node) onFullSyncFailure(name string, err error) error {
	n.Log.Warn("full sync failed", "peer", name, "error", err)
	if b, ok := n.syncPending[name]; ok {
		b.fail(time.Now())
	}
	return nil
}

func (n *Node) onFullSyncSuccess(name string, reply wire.KeyDumpReply) error {
	incoming := recordsFromWire(reply.KeyVals)
	delta := merge(n.store, incoming, n.Log)
	n.notify(delta)
	if len(delta) > 0 {
		n.armTTLForDelta(delta)
		n.publishLocal(delta)
		n.floodDelta(delta, n.Cfg.NodeId, []string{n.Cfg.NodeId, name})
	}
	delete(n.syncPending, name)
	return nil
}

// sendCommand round-trips a request to peer's command endpoint, handling
// Transit wrapping/unwrapping. Runs off the owning loop; callers must
// Dispatch back before touching Node state.
func (n *Node) sendCommand(ctx context.Context, peer *Peer, kind string, msg any) ([]byte, error) {
	reqBytes, err := n.wrapEnvelope(kind, msg, peer.Channel)
	if err != nil {
		return nil, err
	}
	raw, err := n.Transport.Request(ctx, peer.CommandAddr, reqBytes)
	if err != nil {
		return nil, err
	}
	env, _, err := n.unwrapEnvelope(raw, peer.Channel)
	if err != nil {
		return nil, err
	}
	return env.Payload, nil
}

// -- anti-entropy (§4.3 periodic DB sync) ----------------------------------

func (n *Node) tickDbSync() error {
	if len(n.peers) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.peers))
	for name := range n.peers {
		names = append(names, name)
	}
	target := names[rand.IntN(len(names))]
	peer := n.peers[target]
	go n.pullFromPeer(target, peer)
	return nil
}

func (n *Node) pullFromPeer(name string, peer *Peer) {
	ctx, cancel := context.WithTimeout(n.Context, defaultRequestTimeout)
	defer cancel()
	replyPayload, err := n.sendCommand(ctx, peer, wire.KindHashDump, wire.HashDumpRequest{})
	if err != nil {
		n.Log.Warn("db sync: hash_dump failed", "peer", name, "error", err)
		return
	}
	var reply wire.HashDumpReply
	if err := wire.Decode(replyPayload, &reply); err != nil {
		n.Log.Warn("db sync: malformed hash_dump reply", "peer", name, "error", err)
		return
	}
	n.Dispatch(func(nd *Node) error { return nd.onHashDumpReply(name, reply) })
}

func (n *Node) onHashDumpReply(name string, reply wire.HashDumpReply) error {
	peer, ok := n.peers[name]
	if !ok {
		return nil
	}
	var wanted []wire.KeySummary
	for _, s := range reply.Summaries {
		local, ok := n.store[s.Key]
		cmp := 1
		if ok {
			cmp = tuple{s.Version, s.OriginatorId}.compare(local.tuple())
		}
		if cmp > 0 || (cmp == 0 && ok && s.TtlVersion > local.TtlVersion) {
			if ok {
				wanted = append(wanted, local.summary(s.Key))
			} else {
				wanted = append(wanted, wire.KeySummary{Key: s.Key})
			}
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	go n.pullKeys(name, peer, wanted)
	return nil
}

// pullKeys fetches the records behind a set of summaries via KEY_DUMP_DIFF
// rather than KEY_GET: KEY_GET answers drop tombstones (handleKeyGet is a
// user-facing lookup, not a sync primitive), so a KEY_GET-based pull could
// never carry a deletion across and a lost delete flood would never heal
// (§8 Convergence). handleKeyDumpDiff transfers tombstones unfiltered.
func (n *Node) pullKeys(name string, peer *Peer, summaries []wire.KeySummary) {
	ctx, cancel := context.WithTimeout(n.Context, defaultRequestTimeout)
	defer cancel()
	replyPayload, err := n.sendCommand(ctx, peer, wire.KindKeyDumpDiff, wire.KeyDumpDiffRequest{Summaries: summaries})
	if err != nil {
		n.Log.Warn("db sync: key_dump_diff failed", "peer", name, "error", err)
		return
	}
	var reply wire.KeyDumpDiffReply
	if err := wire.Decode(replyPayload, &reply); err != nil {
		n.Log.Warn("db sync: malformed key_dump_diff reply", "peer", name, "error", err)
		return
	}
	n.Dispatch(func(nd *Node) error { return nd.onPullResult(name, reply.KeyVals) })
}

func (n *Node) onPullResult(name string, keyVals map[string]wire.Value) error {
	incoming := recordsFromWire(keyVals)
	delta := merge(n.store, incoming, n.Log)
	n.notify(delta)
	if len(delta) > 0 {
		n.armTTLForDelta(delta)
		n.publishLocal(delta)
		n.floodDelta(delta, n.Cfg.NodeId, []string{n.Cfg.NodeId, name})
	}
	return nil
}
