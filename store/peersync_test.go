package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBackoffDoublesUpToCap covers Scenario 6's doubling: each failure
// doubles the delay from backoffBase, so after three failed attempts a
// peer's delay is base*2^3, capped at backoffCap.
func TestBackoffDoublesUpToCap(t *testing.T) {
	now := time.Now()
	b := newBackoffState(now)
	assert.Equal(t, backoffBase, b.currentDelay)
	assert.True(t, b.due(now))

	for i := 0; i < 3; i++ {
		b.fail(now)
	}
	assert.Equal(t, backoffBase*8, b.currentDelay)
	assert.False(t, b.inFlight)

	// doubling past the cap clamps, never exceeds it
	b.currentDelay = backoffCap
	b.fail(now)
	assert.Equal(t, backoffCap, b.currentDelay)
}

func TestBackoffNotDueUntilDeadline(t *testing.T) {
	now := time.Now()
	b := newBackoffState(now)
	b.fail(now)
	assert.False(t, b.due(now))
	assert.True(t, b.due(now.Add(b.currentDelay)))
}

func TestBackoffSingleInFlight(t *testing.T) {
	now := time.Now()
	b := newBackoffState(now)
	b.inFlight = true
	assert.False(t, b.due(now))
}
