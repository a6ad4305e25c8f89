// Package stores provides Redis-backed, short-lived record stores for
// security-sensitive verification flows: email verification requests and
// password reset sessions.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis with a TTL
// mirroring the expiration timestamp carried inside the record. Email
// verification records are keyed by user ID, which structurally enforces the
// at-most-one-live-request-per-user invariant: saving a new request replaces
// any prior one. Password reset records are keyed by the reset token hash
// with a per-user index set for bulk invalidation.
//
// # Architecture boundaries
//
// This package owns persistence for transient verification records. It does
// NOT generate tokens or codes, enforce rate limits, or compare codes —
// those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import the root authgate package or any sibling internal package.
//   - Store a raw reset token (only its hash is used as a key).
//   - Log or expose codes outside returned records.
package stores
