package ratelimit

import (
	"sync"
	"time"
)

type expiringBucket struct {
	count     int
	createdAt time.Time
}

// ExpiringTokenBucket models "N attempts per window": each key holds a fixed
// allotment that resets entirely once the window elapses from the first use
// in that window. There is no smooth refill.
type ExpiringTokenBucket struct {
	capacity  int
	expiresIn time.Duration

	mu      sync.Mutex
	buckets map[string]*expiringBucket

	now func() time.Time
}

// NewExpiringTokenBucket creates a limiter granting capacity attempts per
// expiry window.
func NewExpiringTokenBucket(capacity int, expiresIn time.Duration) *ExpiringTokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &ExpiringTokenBucket{
		capacity:  capacity,
		expiresIn: expiresIn,
		buckets:   make(map[string]*expiringBucket),
		now:       time.Now,
	}
}

// Check reports whether Consume(key, cost) would currently succeed without
// mutating any state.
func (b *ExpiringTokenBucket) Check(key string, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[key]
	if !ok || b.expired(bucket) {
		return cost <= b.capacity
	}
	return cost <= bucket.count
}

// Consume spends cost tokens for key. It returns false and deducts nothing
// when fewer than cost tokens remain in the current window.
func (b *ExpiringTokenBucket) Consume(key string, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	bucket, ok := b.buckets[key]
	if !ok || b.expired(bucket) {
		if cost > b.capacity {
			return false
		}
		b.buckets[key] = &expiringBucket{
			count:     b.capacity - cost,
			createdAt: now,
		}
		return true
	}

	if cost > bucket.count {
		return false
	}
	bucket.count -= cost
	return true
}

// Reset clears the window for key so the full allotment is available again.
// Call after the guarded operation succeeds.
func (b *ExpiringTokenBucket) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buckets, key)
}

func (b *ExpiringTokenBucket) expired(bucket *expiringBucket) bool {
	return b.now().Sub(bucket.createdAt) >= b.expiresIn
}
