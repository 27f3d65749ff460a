package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlrus/openr/wire"
)

func TestComputeHashIsPureAndSensitiveToEachField(t *testing.T) {
	base := ComputeHash(1, "x", []byte("a"), true)
	assert.Equal(t, base, ComputeHash(1, "x", []byte("a"), true))
	assert.NotEqual(t, base, ComputeHash(2, "x", []byte("a"), true))
	assert.NotEqual(t, base, ComputeHash(1, "y", []byte("a"), true))
	assert.NotEqual(t, base, ComputeHash(1, "x", []byte("b"), true))
	assert.NotEqual(t, base, ComputeHash(1, "x", nil, false))
}

func TestWireRoundTripPreservesHash(t *testing.T) {
	r := NewRecord(7, "origin", []byte("payload"), true, 5000, 2)
	decoded := recordFromWire(r.toWire())
	assert.Equal(t, r, decoded)
	assert.Equal(t, r.Hash, ComputeHash(decoded.Version, decoded.OriginatorId, decoded.Value, decoded.HasValue))
}

func TestDeletedIsExactlyTTLZero(t *testing.T) {
	assert.True(t, Record{TtlMs: 0}.Deleted())
	assert.False(t, Record{TtlMs: TTLInfinite}.Deleted())
	assert.False(t, Record{TtlMs: 500}.Deleted())
}

func TestTupleOrdersByVersionThenOriginator(t *testing.T) {
	assert.Equal(t, -1, tuple{1, "a"}.compare(tuple{2, "a"}))
	assert.Equal(t, 1, tuple{2, "a"}.compare(tuple{1, "z"}))
	assert.Equal(t, -1, tuple{1, "a"}.compare(tuple{1, "b"}))
	assert.Equal(t, 0, tuple{1, "a"}.compare(tuple{1, "a"}))
}

func TestRecordSummaryMatchesWireKeySummary(t *testing.T) {
	r := NewRecord(3, "x", []byte("v"), true, int64(TTLInfinite), 1)
	s := r.summary("k")
	assert.Equal(t, wire.KeySummary{Key: "k", Version: 3, OriginatorId: "x", TtlVersion: 1, Hash: r.Hash}, s)
}
