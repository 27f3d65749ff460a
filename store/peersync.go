package store

import "time"

const (
	backoffBase = 4 * time.Second
	backoffCap  = 256 * time.Second
)

// backoffState is the exponential-backoff record for a peer awaiting full
// sync (§4.4). On creation currentDelay = backoffBase and nextAttempt = now;
// each failure doubles currentDelay up to backoffCap and pushes nextAttempt
// out by the new delay. A single in-flight request per peer is enforced by
// inFlight.
type backoffState struct {
	currentDelay time.Duration
	nextAttempt  time.Time
	inFlight     bool
}

func newBackoffState(now time.Time) *backoffState {
	return &backoffState{currentDelay: backoffBase, nextAttempt: now}
}

// fail doubles the delay, capped at backoffCap, and reschedules from now.
func (b *backoffState) fail(now time.Time) {
	b.currentDelay = min(b.currentDelay*2, backoffCap)
	b.nextAttempt = now.Add(b.currentDelay)
	b.inFlight = false
}

// due reports whether the next attempt deadline has passed and no request
// is currently in flight for this peer.
func (b *backoffState) due(now time.Time) bool {
	return !b.inFlight && !now.Before(b.nextAttempt)
}
