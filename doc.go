// Package authgate provides the session and credential lifecycle for a
// web application: opaque bearer-token sessions with sliding renewal,
// email verification, password reset, TOTP second factors, recovery
// codes, and the rate limiting around all of them, backed by Redis.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (RegisterResult, SessionInfo,
// MetricsSnapshot, etc.). User persistence stays on the caller's side of
// the [UserProvider] interface; the engine stores only sessions and
// pending verification state, never account records.
//
// # What this package must NOT do
//
//   - Persist or log raw bearer tokens; only their hashes reach Redis.
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//
// # Performance contract
//
// ValidateSessionToken is the hot path and runs on every authenticated
// request. It is one Redis round-trip plus one [UserProvider] lookup,
// two when a renewal rewrite is due. Login and account operations are
// dominated by the Argon2id hash and are expected to take tens of
// milliseconds at production cost parameters.
package authgate
