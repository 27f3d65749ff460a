// Package health implements the topology-aware ping scheduler layered on
// top of the KvStore's view of the fabric (§4.5).
package health

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/metrics"
	"github.com/mlrus/openr/prefixutil"
	"github.com/mlrus/openr/store"
)

// AdjacencyKeyPrefix and PrefixKeyPrefix name the KvStore key namespaces a
// link-discovery/prefix-allocation publisher writes adjacency and prefix
// announcements under (§4.5). The checker reacts only to keys under these
// prefixes and treats everything else in the store as none of its concern.
const (
	AdjacencyKeyPrefix = "adj:"
	PrefixKeyPrefix    = "prefix:"
)

// NodeInfo is the per-remote-node state described in §3/§4.5.
type NodeInfo struct {
	Neighbors    []string
	IpAddress    netip.Addr
	HasIpAddress bool

	// Prefixes is the node's last coalesced prefix announcement, kept so a
	// later announcement can retract this node's stale entries from
	// prefixIndex before inserting the new ones.
	Prefixes []netip.Prefix

	LastValSent     uint64
	LastAckFromNode uint64
	LastAckToNode   uint64
}

// Env is readable from any goroutine; only handlers running on the owning
// loop may reach into Checker's node table and target set (§5).
type Env struct {
	Context context.Context
	Cancel  context.CancelCauseFunc

	Cfg *config.NodeConfig
	Log *slog.Logger

	Metrics   *metrics.Registry
	Transport store.Transport

	dispatchChannel chan func(*Checker) error
}

// Checker is the health-checker event-loop task described in §4.5/§5. All
// fields below are only touched from the owning goroutine running Run.
type Checker struct {
	*Env

	myNodeName string
	nodeInfo   map[string]*NodeInfo
	targets    map[string]bool

	// prefixIndex is a longest-prefix-match table from every node's
	// announced prefixes to its name (§4.5 "prefix announcements"), used to
	// confirm a ping target's address is still owned by that node before
	// pinging it.
	prefixIndex *prefixutil.Index[string]

	lst *listeners
}

// NewChecker constructs a Checker ready to Run. cfg must already be
// validated.
func NewChecker(ctx context.Context, cancel context.CancelCauseFunc, cfg *config.NodeConfig, log *slog.Logger, transport store.Transport) *Checker {
	dispatch := make(chan func(*Checker) error, 128)
	return &Checker{
		Env: &Env{
			Context:         ctx,
			Cancel:          cancel,
			Cfg:             cfg,
			Log:             log,
			Metrics:         metrics.NewRegistry("health_checker"),
			Transport:       transport,
			dispatchChannel: dispatch,
		},
		myNodeName:  cfg.NodeId,
		nodeInfo:    make(map[string]*NodeInfo),
		targets:     make(map[string]bool),
		prefixIndex: prefixutil.NewIndex[string](),
		lst:         &listeners{},
	}
}

func (c *Checker) infoFor(name string) *NodeInfo {
	info, ok := c.nodeInfo[name]
	if !ok {
		info = &NodeInfo{}
		c.nodeInfo[name] = info
	}
	return info
}
