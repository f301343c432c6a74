// Package storage provides the TTL-bounded counting primitive behind rate
// limiting: Redis as the shared primary, an in-process map as the automatic
// fallback when Redis is unreachable.
//
// # Design
//
// Counting is INCR + EXPIRE-on-first-hit; the first write in a window sets
// the expiry and later increments never extend it. The fallback layer flips
// to memory on the first unavailable error and re-probes the primary after a
// cool-off, trading cross-instance accuracy for availability during outages.
//
// # What this package must NOT do
//
//   - Hold a lock across a Redis round-trip.
//   - Fail closed: an unreachable backend must never reject traffic here
//     (session/auth stores make the opposite choice, deliberately).
package storage
