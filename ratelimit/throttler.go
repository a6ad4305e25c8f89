package ratelimit

import (
	"sync"
	"time"
)

type throttleState struct {
	index     int
	updatedAt time.Time
}

// Throttler applies per-key escalating backoff over an ordered timeout
// sequence. The first attempt for a key is always allowed; each subsequent
// attempt is allowed only once the timeout at the key's current index has
// elapsed since the last attempt, and every allowed attempt advances the
// index (clamped to the final timeout).
type Throttler struct {
	timeouts []time.Duration

	mu     sync.Mutex
	states map[string]*throttleState

	now func() time.Time
}

// NewThrottler creates a throttler with the given backoff sequence. The
// sequence must be non-empty; a typical login ladder starts at zero and
// roughly doubles.
func NewThrottler(timeouts []time.Duration) *Throttler {
	if len(timeouts) == 0 {
		timeouts = []time.Duration{0}
	}
	return &Throttler{
		timeouts: timeouts,
		states:   make(map[string]*throttleState),
		now:      time.Now,
	}
}

// Consume records an attempt for key. It returns true when enough time has
// passed since the previous attempt; a rejected attempt does not advance the
// backoff index or the attempt timestamp.
func (t *Throttler) Consume(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	state, ok := t.states[key]
	if !ok {
		t.states[key] = &throttleState{index: 1, updatedAt: now}
		return true
	}

	idx := state.index
	if idx >= len(t.timeouts) {
		idx = len(t.timeouts) - 1
	}
	if now.Sub(state.updatedAt) < t.timeouts[idx] {
		return false
	}

	state.updatedAt = now
	if state.index < len(t.timeouts)-1 {
		state.index++
	}
	return true
}

// Reset clears the backoff state for key. Call on successful authentication
// so the next failure starts at the beginning of the ladder.
func (t *Throttler) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}
