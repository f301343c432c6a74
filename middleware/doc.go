// Package middleware exposes net/http adapters over the engine.
//
//   - [Guard] — bearer token validation, principal injection.
//   - [RateLimit] — named-rule admission with quota and Retry-After headers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into engine calls. It makes no
// authentication or admission decisions of its own.
package middleware
