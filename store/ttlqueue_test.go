package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLQueuePopExpiredOrdersByDeadline(t *testing.T) {
	q := NewTTLQueue()
	now := time.Now()
	q.Push("late", 1, 0, now.Add(2*time.Second))
	q.Push("early", 1, 0, now.Add(time.Second))

	live := func(string, uint64, uint64) bool { return true }
	due := q.PopExpired(now.Add(3*time.Second), live)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].Key)
	assert.Equal(t, "late", due[1].Key)
}

func TestTTLQueueDiscardsStaleEntries(t *testing.T) {
	q := NewTTLQueue()
	now := time.Now()
	q.Push("k", 1, 0, now.Add(time.Second))

	// the record has since moved to version 2: the popped entry no longer
	// matches the live identity and must be discarded, not reported.
	due := q.PopExpired(now.Add(2*time.Second), func(key string, version, ttlVersion uint64) bool {
		return version == 2
	})
	assert.Empty(t, due)
	assert.Equal(t, 0, q.Len())
}

func TestTTLQueuePeekDeadline(t *testing.T) {
	q := NewTTLQueue()
	_, ok := q.PeekDeadline()
	assert.False(t, ok)

	now := time.Now()
	q.Push("k", 1, 0, now.Add(5*time.Second))
	d, ok := q.PeekDeadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(5*time.Second), d)
}

func TestTTLQueueDoesNotPopFutureEntries(t *testing.T) {
	q := NewTTLQueue()
	now := time.Now()
	q.Push("k", 1, 0, now.Add(time.Minute))

	due := q.PopExpired(now, func(string, uint64, uint64) bool { return true })
	assert.Empty(t, due)
	assert.Equal(t, 1, q.Len())
}
