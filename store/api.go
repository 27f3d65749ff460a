package store

import "github.com/mlrus/openr/wire"

// The methods below are thin, dispatch-safe wrappers around the command
// handlers for callers running inside the same process as the Node's
// owning goroutine (§5's "intra-host subscribers" case, e.g. a
// health.Checker) — call them from inside a DispatchWait closure, never
// directly from another goroutine.

func (n *Node) KeySet(req wire.KeySetRequest) wire.KeySetReply     { return n.handleKeySet(req) }
func (n *Node) KeyGet(req wire.KeyGetRequest) wire.KeyGetReply     { return n.handleKeyGet(req) }
func (n *Node) KeyDump(req wire.KeyDumpRequest) wire.KeyDumpReply  { return n.handleKeyDump(req) }
func (n *Node) HashDump(req wire.HashDumpRequest) wire.HashDumpReply {
	return n.handleHashDump(req)
}
func (n *Node) PeerAdd(req wire.PeerAddRequest) wire.AckReply { return n.handlePeerAdd(req) }
func (n *Node) PeerDel(req wire.PeerDelRequest) wire.AckReply { return n.handlePeerDel(req) }
func (n *Node) PeerDump() wire.PeerDumpReply                  { return n.handlePeerDump() }
