// Package middleware composes the HTTP request pipeline in front of an
// application using authgate: IP rate limiting, cookie-based session
// resolution, and response post-processing for auth-state changes.
//
// # Pipeline stages
//
//   - Rate limit — client key from the first X-Forwarded-For entry, or
//     the connection's remote address when the header is absent. Reads
//     cost 1 token, writes cost 3, against a shared refilling bucket.
//   - Session resolution — reads the session cookie, validates it
//     through the Engine, refreshes or deletes the cookie, and stores a
//     [RequestContext] on the request context.
//   - Post-processing — when the session cookie was set or cleared
//     during the request, cache-defeating headers are injected before
//     the first write.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Access Redis (the Engine handles I/O).
//   - Skip rate limiting for any request, including ones missing the
//     forwarded-IP header.
package middleware
