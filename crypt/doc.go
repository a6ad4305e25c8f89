// Package crypt provides authenticated encryption for secrets that must be
// recoverable, such as TOTP keys and recovery codes stored at rest.
//
// # Wire format
//
// Ciphertexts are AES-256-GCM: a fresh random 12-byte nonce prepended to the
// sealed output (which carries the 16-byte authentication tag). Any single-bit
// corruption fails authentication and is rejected.
//
// # Architecture boundaries
//
// This package owns reversible encryption only. One-way credential hashing
// lives in package password; key provisioning is the caller's concern
// (environment-supplied secret).
//
// # What this package must NOT do
//
//   - Log, export, or serialize the encryption key.
//   - Reuse a nonce across Encrypt calls.
//   - Accept unauthenticated ciphertext.
package crypt
