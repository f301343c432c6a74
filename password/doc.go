// Package password implements password hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verification honors the parameters embedded in the stored hash, so cost
// upgrades are transparent: [Argon2.NeedsUpgrade] reports when a hash
// should be recomputed on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy is the
// host application's concern.
package password
