package ratelimit

import (
	"sync"
	"time"
)

type refillingBucket struct {
	count      int
	refilledAt time.Time
}

// RefillingTokenBucket grants up to capacity tokens per key and refills one
// token per elapsed refill interval, up to capacity. Refill is computed
// lazily on access; no background timer runs.
type RefillingTokenBucket struct {
	capacity       int
	refillInterval time.Duration

	mu      sync.Mutex
	buckets map[string]*refillingBucket

	now func() time.Time
}

// NewRefillingTokenBucket creates a limiter with the given capacity and
// refill interval. Capacity below one is clamped to one.
func NewRefillingTokenBucket(capacity int, refillInterval time.Duration) *RefillingTokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &RefillingTokenBucket{
		capacity:       capacity,
		refillInterval: refillInterval,
		buckets:        make(map[string]*refillingBucket),
		now:            time.Now,
	}
}

// Check reports whether Consume(key, cost) would currently succeed without
// mutating any state.
func (b *RefillingTokenBucket) Check(key string, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.buckets[key]
	if !ok {
		return cost <= b.capacity
	}

	available := bucket.count + b.elapsedRefill(bucket)
	if available > b.capacity {
		available = b.capacity
	}
	return cost <= available
}

// Consume spends cost tokens for key. It returns false and leaves the bucket
// unchanged when fewer than cost tokens are available.
func (b *RefillingTokenBucket) Consume(key string, cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	bucket, ok := b.buckets[key]
	if !ok {
		if cost > b.capacity {
			return false
		}
		b.buckets[key] = &refillingBucket{
			count:      b.capacity - cost,
			refilledAt: now,
		}
		return true
	}

	refill := b.elapsedRefill(bucket)
	available := bucket.count + refill
	if available >= b.capacity {
		// Excess refill beyond capacity is discarded; restart accrual at now.
		available = b.capacity
		bucket.refilledAt = now
	} else {
		bucket.refilledAt = bucket.refilledAt.Add(time.Duration(refill) * b.refillInterval)
	}

	if cost > available {
		bucket.count = available
		return false
	}

	bucket.count = available - cost
	return true
}

func (b *RefillingTokenBucket) elapsedRefill(bucket *refillingBucket) int {
	if b.refillInterval <= 0 {
		return b.capacity
	}
	return int(b.now().Sub(bucket.refilledAt) / b.refillInterval)
}
