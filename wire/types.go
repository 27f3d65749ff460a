// Package wire defines the messages exchanged between KvStore and
// HealthChecker instances and the schema-driven codec used to move them
// over the transport (§6 of the specification).
package wire

// ErrorCode is returned to callers of request/reply commands instead of a
// bare Go error, so diagnostic replies stay structured across the wire.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrNotFound
	ErrInvalidArgument
	ErrProtocol
	ErrTransport
	ErrConfiguration
)

func (e ErrorCode) Error() string {
	switch e {
	case ErrNone:
		return "no error"
	case ErrNotFound:
		return "not found"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrProtocol:
		return "protocol violation"
	case ErrTransport:
		return "transport error"
	case ErrConfiguration:
		return "configuration error"
	default:
		return "unknown error"
	}
}

// Value is the wire shape of a value record (§3).
type Value struct {
	Version      uint64 `msgpack:"version"`
	OriginatorId string `msgpack:"originator_id"`
	Value        []byte `msgpack:"value,omitempty"`
	HasValue     bool   `msgpack:"has_value"`
	TtlMs        int64  `msgpack:"ttl_ms"`
	TtlVersion   uint64 `msgpack:"ttl_version"`
	Hash         uint64 `msgpack:"hash"`
}

// Publication is flooded to peers and local subscribers, and carried in a
// KEY_SET reply as the accepted delta (§4.3).
type Publication struct {
	KeyVals      map[string]Value `msgpack:"key_vals"`
	ExpiredKeys  []string         `msgpack:"expired_keys,omitempty"`
	NodeIds      []string         `msgpack:"node_ids,omitempty"`
	Originator   string           `msgpack:"originator,omitempty"`
	HasOriginator bool            `msgpack:"has_originator"`
}

// KeySummary is a HASH_DUMP entry: enough to detect divergence without
// shipping the value payload (§4.3).
type KeySummary struct {
	Key          string `msgpack:"key"`
	Version      uint64 `msgpack:"version"`
	OriginatorId string `msgpack:"originator_id"`
	TtlVersion   uint64 `msgpack:"ttl_version"`
	Hash         uint64 `msgpack:"hash"`
}

type KeyDumpRequest struct {
	Prefix   string `msgpack:"prefix,omitempty"`
	HasPrefix bool  `msgpack:"has_prefix"`
}

type KeyDumpReply struct {
	KeyVals map[string]Value `msgpack:"key_vals"`
	Error   ErrorCode        `msgpack:"error,omitempty"`
}

type HashDumpRequest struct {
	Prefix    string `msgpack:"prefix,omitempty"`
	HasPrefix bool   `msgpack:"has_prefix"`
}

type HashDumpReply struct {
	Summaries []KeySummary `msgpack:"summaries"`
	Error     ErrorCode    `msgpack:"error,omitempty"`
}

type KeyDumpDiffRequest struct {
	Summaries []KeySummary `msgpack:"summaries"`
}

type KeyDumpDiffReply struct {
	KeyVals map[string]Value `msgpack:"key_vals"`
	Error   ErrorCode        `msgpack:"error,omitempty"`
}

type KeySetRequest struct {
	Records   map[string]Value `msgpack:"records"`
	Floodlist []string         `msgpack:"floodlist,omitempty"`
	Force     bool             `msgpack:"force,omitempty"`
}

type KeySetReply struct {
	Delta Publication `msgpack:"delta"`
	Error ErrorCode   `msgpack:"error,omitempty"`
}

type KeyGetRequest struct {
	Keys []string `msgpack:"keys"`
}

type KeyGetReply struct {
	KeyVals map[string]Value `msgpack:"key_vals"`
	Error   ErrorCode         `msgpack:"error,omitempty"`
}

// PeerSpec describes how to reach a peer's publish and command endpoints.
// PublicKey is only meaningful when the local node was constructed with
// encryption enabled: it is the peer's X25519 public key, trusted out of
// band, used to open bundles it seals with its own public key as shared
// secret (§6 Authenticated encryption).
type PeerSpec struct {
	PublishAddr string `msgpack:"publish_addr"`
	CommandAddr string `msgpack:"command_addr"`
	PublicKey   []byte `msgpack:"public_key,omitempty"`
}

// Envelope tags a command or publication datagram with its message kind, so
// a single UDP socket can multiplex the command surface listed in §4.3 and
// the health-check ping protocol in §4.5.
type Envelope struct {
	Kind    string `msgpack:"kind"`
	Payload []byte `msgpack:"payload"`
}

// Envelope kinds. A reply envelope carries the same kind as its request,
// with the matching *Reply message as payload.
const (
	KindKeySet         = "key_set"
	KindKeyGet         = "key_get"
	KindKeyDump        = "key_dump"
	KindHashDump       = "hash_dump"
	KindKeyDumpDiff    = "key_dump_diff"
	KindPeerAdd        = "peer_add"
	KindPeerDel        = "peer_del"
	KindPeerDump       = "peer_dump"
	KindPublication    = "publication"
	KindHealthMessage  = "health_message"
	KindHealthRequest  = "health_request"
)

type PeerAddRequest struct {
	Peers map[string]PeerSpec `msgpack:"peers"`
}

type PeerDelRequest struct {
	Names []string `msgpack:"names"`
}

type AckReply struct {
	Error ErrorCode `msgpack:"error,omitempty"`
}

type PeerInfo struct {
	Name        string `msgpack:"name"`
	PublishAddr string `msgpack:"publish_addr"`
	CommandAddr string `msgpack:"command_addr"`
	SyncPending bool   `msgpack:"sync_pending"`
}

type PeerDumpReply struct {
	Peers []PeerInfo `msgpack:"peers"`
}

// AdjacencyDb and PrefixDb are the announcement payloads a link-discovery
// or prefix-allocation publisher stores under an adjacency/prefix key
// (§4.5 "adjacency announcements", "prefix announcements"); the KvStore
// treats their bytes as opaque, only the health checker decodes them.
type AdjacencyDb struct {
	ThisNodeName string   `msgpack:"this_node_name"`
	Neighbors    []string `msgpack:"neighbors"`
}

type PrefixDb struct {
	ThisNodeName string   `msgpack:"this_node_name"`
	Prefixes     []string `msgpack:"prefixes"`
}

// Health-checker wire messages (§4.5, §6).
type HealthMsgType int

const (
	HealthPing HealthMsgType = iota
	HealthAck
)

type HealthCheckerMessage struct {
	FromNodeName string        `msgpack:"from_node_name"`
	Type         HealthMsgType `msgpack:"type"`
	SeqNum       uint64        `msgpack:"seq_num"`
}

type HealthCheckerCmd int

const (
	HealthPeek HealthCheckerCmd = iota
)

type HealthCheckerRequest struct {
	Cmd HealthCheckerCmd `msgpack:"cmd"`
}

type HealthNodeInfo struct {
	Neighbors        []string `msgpack:"neighbors"`
	IpAddress        string   `msgpack:"ip_address,omitempty"`
	LastValSent      uint64   `msgpack:"last_val_sent"`
	LastAckFromNode  uint64   `msgpack:"last_ack_from_node"`
	LastAckToNode    uint64   `msgpack:"last_ack_to_node"`
}

type HealthCheckerPeekReply struct {
	Nodes map[string]HealthNodeInfo `msgpack:"nodes"`
}

// Keypair is the serialized shape of an X25519 key pair (§6).
type Keypair struct {
	PublicKey  []byte `msgpack:"public_key"`
	PrivateKey []byte `msgpack:"private_key"`
}

// Transit is the outer shape of every datagram this module sends: the
// sender's name in cleartext (so the receiver knows which peer's public key
// to open with) wrapping an Envelope that is optionally sealed whole. Only
// the sender's identity is ever unencrypted; command and publication
// contents are opaque unless Encrypted is false.
type Transit struct {
	From      string `msgpack:"from"`
	Encrypted bool   `msgpack:"encrypted"`
	Payload   []byte `msgpack:"payload"`
}
