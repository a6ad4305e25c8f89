// Package internal contains helper utilities that are intentionally private
// to authgate, including secure random code generation.
//
// # Sub-packages
//
//   - stores — Redis-backed record stores for email verification requests
//     and password reset sessions
//
// # What this package must NOT do
//
//   - Export types that appear in the public authgate API.
//   - Be imported by any package outside the authgate module.
package internal
