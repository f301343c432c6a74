// Package session persists refresh-token sessions and the blacklist of
// consumed tokens in Redis.
//
// # Keyspace
//
// Records live under "rt:<user>:<device>", a hash reverse index under
// "rth:<hex>", the per-user device set under "rtu:<user>", and blacklist
// entries under "bl:<hex>". All values are TTL-bounded by the refresh token
// lifetime; nothing here outlives the token it protects.
//
// # What this package must NOT do
//
//   - Store or log a raw refresh token (hashes only).
//   - Treat a store outage as "no session": transport failures surface as
//     [ErrStoreUnavailable] so the auth layer can fail closed.
//   - Swallow errors, except in [Store.Touch], which is explicitly
//     best-effort bookkeeping.
package session
