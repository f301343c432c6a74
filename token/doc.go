// Package token implements stateless signing and verification of access and
// refresh tokens (HS256 JWTs carrying subject, expiry, and a type claim).
//
// # Architecture boundaries
//
// token owns no mutable state: a [Codec] is a pure function over its signing
// secret and clock. Session persistence, rotation, and blacklisting live in
// the session package; token never touches Redis.
//
// # What this package must NOT do
//
//   - Perform I/O of any kind.
//   - Log or otherwise expose raw token strings.
//   - Distinguish "expired" from "malformed" toward callers.
package token
