package store

import (
	"context"
	"log/slog"

	"github.com/mlrus/openr/config"
	"github.com/mlrus/openr/crypto"
)

// Peer is a peer table entry (§3): its reachable endpoints. Whether it
// currently owes a full sync is tracked separately in Node.syncPending.
type Peer struct {
	Name        string
	PublishAddr string
	CommandAddr string
	Channel     *crypto.Channel // nil unless encryption is enabled
}

// Env is readable from any goroutine; only handlers running on the owning
// loop may reach into Node's map, peer table, and TTL queue (§5).
type Env struct {
	Context context.Context
	Cancel  context.CancelCauseFunc

	Cfg *config.NodeConfig
	Log *slog.Logger

	Keypair   crypto.Keypair
	HasKeys   bool
	Transport Transport

	dispatchChannel chan func(*Node) error
}

// Node is the KvStore event-loop task described in §4.3/§5. All fields
// below are only touched from the owning goroutine running Run.
type Node struct {
	*Env

	store map[string]Record
	ttl   *TTLQueue

	peers       map[string]*Peer
	syncPending map[string]*backoffState
	subscribers []func(Delta)

	lst     *listeners
	started bool
}

// NewNode constructs a Node ready to Run. cfg and keypair must already be
// validated; keypair is the zero value when encryption is disabled.
func NewNode(ctx context.Context, cancel context.CancelCauseFunc, cfg *config.NodeConfig, log *slog.Logger, transport Transport, keypair crypto.Keypair, hasKeys bool) *Node {
	dispatch := make(chan func(*Node) error, 128)
	return &Node{
		Env: &Env{
			Context:         ctx,
			Cancel:          cancel,
			Cfg:             cfg,
			Log:             log,
			Keypair:         keypair,
			HasKeys:         hasKeys,
			Transport:       transport,
			dispatchChannel: dispatch,
		},
		store:       make(map[string]Record),
		ttl:         NewTTLQueue(),
		peers:       make(map[string]*Peer),
		syncPending: make(map[string]*backoffState),
		lst:         &listeners{},
	}
}

// Subscribe registers fn to be called with every non-empty delta this node
// merges, whether locally originated or received from a peer (§4.3
// "publishes the delta on its local and global publish channels"). This is
// the in-process realization of the local publish channel: intra-host
// subscribers such as a HealthChecker run in the same binary and need no
// wire hop.
func (n *Node) Subscribe(fn func(Delta)) {
	n.subscribers = append(n.subscribers, fn)
}

func (n *Node) notify(delta Delta) {
	if len(delta) == 0 {
		return
	}
	for _, fn := range n.subscribers {
		fn(delta)
	}
}
