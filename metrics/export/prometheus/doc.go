// Package prometheus renders authgate metrics in Prometheus text
// exposition format.
//
// [NewExporter] accepts an [authgate.Engine] and exposes an
// [net/http.Handler] that renders every counter as authgate_*_total,
// plus the audit dispatcher's drop counter.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount
//     the Handler themselves.
//   - Mutate engine state.
package prometheus
