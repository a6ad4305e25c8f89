// Package session provides Redis-backed session persistence with hashed
// bearer tokens, compact binary record encoding, and sliding renewal.
//
// # Token scheme
//
// Clients hold an opaque bearer token (20 random bytes, lowercase base32).
// The server stores only hex(SHA-256(token)) as the session ID, so a leaked
// store never yields usable tokens. Record TTLs in Redis mirror the
// expiration timestamp carried inside each record.
//
// # Binary encoding
//
// Records are stored as a compact versioned binary format. The encoder is
// append-only: new versions add fields but never reinterpret old ones.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT resolve users, set cookies, or enforce authentication policy —
// those responsibilities belong to the Engine and middleware.
//
// # What this package must NOT do
//
//   - Store a raw bearer token anywhere.
//   - Import the root authgate package (no upward imports).
package session
