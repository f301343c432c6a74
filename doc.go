// Package authcore is an embeddable authentication core for HTTP backends:
// JWT access/refresh pairs, Redis-backed sessions with rotation and replay
// detection, and a multi-tier fixed-window rate limiter.
//
// Hosts supply credentials through a [UserProvider] and build an [Engine]:
//
//	engine, err := authcore.New().
//		WithSecret(secret).
//		WithRedis(rdb).
//		WithUserProvider(users).
//		Build()
//
// The engine owns no user data and performs no network I/O beyond Redis.
// Refresh tokens rotate on every use; a rotated token presented again is
// reported as [ErrRefreshReuse]. Rate limiting fails open to in-process
// counters when Redis is down, while session operations fail closed.
package authcore
