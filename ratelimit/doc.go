// Package ratelimit provides in-process token bucket rate limiters keyed by an
// arbitrary identifier (client IP, user ID).
//
// # Variants
//
//   - [RefillingTokenBucket] — capacity refilled one token per elapsed
//     interval, computed lazily at access time (no background timer).
//   - [ExpiringTokenBucket] — a fixed allotment that resets entirely once the
//     window elapses from first use ("N attempts per window").
//   - [Throttler] — per-key escalating backoff over an ordered timeout
//     sequence, reset on successful authentication.
//
// All variants serialize access to their bucket maps with a mutex so that
// concurrent requests on the same key cannot both spend the last token.
//
// Bucket maps are ephemeral process memory and are never evicted; a
// long-running deployment with hostile key cardinality should front these
// with a bounded store. Consumed tokens are not refunded when a request is
// cancelled mid-flight.
//
// # What this package must NOT do
//
//   - Perform I/O or depend on a backing store.
//   - Import any other authgate package.
package ratelimit
