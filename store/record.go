// Package store implements the replicated key-value store: the merge
// engine, TTL countdown queue, KvStore event-loop node, and peer sync
// controller (§3, §4 of the specification).
package store

import (
	"github.com/cespare/xxhash/v2"

	"github.com/mlrus/openr/wire"
)

// TTLInfinite is the sentinel ttl_ms value that disables expiry (§3).
const TTLInfinite int64 = -1

// Record is the in-memory representation of a value record (§3). version is
// non-decreasing per key; originator_id then ttl_version break ties, and a
// differing hash under an equal (version, originator_id) is rejected rather
// than ordered (see tuple).
type Record struct {
	Version      uint64
	OriginatorId string
	Value        []byte
	HasValue     bool
	TtlMs        int64
	TtlVersion   uint64
	Hash         uint64
}

// ComputeHash is the pure function over the identifying fields required by
// Invariant 3: two records compare equal iff (version, originator_id, hash)
// agree.
func ComputeHash(version uint64, originatorId string, value []byte, hasValue bool) uint64 {
	h := xxhash.New()
	var buf [9]byte
	buf[0] = 0
	if hasValue {
		buf[0] = 1
	}
	putUint64(buf[1:], version)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(originatorId)
	if hasValue {
		_, _ = h.Write(value)
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
}

// NewRecord builds a record with its hash computed from the identifying
// fields.
func NewRecord(version uint64, originatorId string, value []byte, hasValue bool, ttlMs int64, ttlVersion uint64) Record {
	return Record{
		Version:      version,
		OriginatorId: originatorId,
		Value:        value,
		HasValue:     hasValue,
		TtlMs:        ttlMs,
		TtlVersion:   ttlVersion,
		Hash:         ComputeHash(version, originatorId, value, hasValue),
	}
}

// tuple is the (version, originator_id) ordering key used by the merge
// engine's per-key decision (§4.1, steps 1-2). Two records with an equal
// tuple can only differ legitimately in ttl_version (step 3); a hash
// mismatch at that point is a protocol violation (step 4), not a further
// tie-break, since only the originator named in originator_id is expected
// to produce content under a given version.
type tuple struct {
	version      uint64
	originatorId string
}

func (r Record) tuple() tuple {
	return tuple{r.Version, r.OriginatorId}
}

// compare returns -1, 0, or 1 comparing a's tuple to b's, ordering by
// version then originator_id lexicographically.
func (a tuple) compare(b tuple) int {
	if a.version != b.version {
		if a.version < b.version {
			return -1
		}
		return 1
	}
	if a.originatorId != b.originatorId {
		if a.originatorId < b.originatorId {
			return -1
		}
		return 1
	}
	return 0
}

// Deleted reports whether r represents a tombstone: ttl_ms = 0 is used
// uniformly for both TTL expiry and explicit deletion (§9 open question).
func (r Record) Deleted() bool {
	return r.TtlMs == 0
}

func (r Record) toWire() wire.Value {
	return wire.Value{
		Version:      r.Version,
		OriginatorId: r.OriginatorId,
		Value:        r.Value,
		HasValue:     r.HasValue,
		TtlMs:        r.TtlMs,
		TtlVersion:   r.TtlVersion,
		Hash:         r.Hash,
	}
}

func recordFromWire(v wire.Value) Record {
	return Record{
		Version:      v.Version,
		OriginatorId: v.OriginatorId,
		Value:        v.Value,
		HasValue:     v.HasValue,
		TtlMs:        v.TtlMs,
		TtlVersion:   v.TtlVersion,
		Hash:         v.Hash,
	}
}

func (r Record) summary(key string) wire.KeySummary {
	return wire.KeySummary{
		Key:          key,
		Version:      r.Version,
		OriginatorId: r.OriginatorId,
		TtlVersion:   r.TtlVersion,
		Hash:         r.Hash,
	}
}
