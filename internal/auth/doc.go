// Package auth is the authentication and authorisation core of Keywarden.
//
// A single Manager instance owns every piece of mutable state:
//   - Credential store (behind the UserStore interface; in-memory by
//     default, SQLite-backed where durability is wanted)
//   - Rate limiter / lockout guard (per-identity lockout, per-origin
//     failure window)
//   - Session & token ledger (JWT access tokens, single-use rotating
//     refresh tokens, revocation blacklist, per-user session cap with
//     FIFO eviction)
//   - Authorization evaluator (role defaults plus explicit grants with
//     "domain:*" wildcard matching, super-admin bypass)
//
// Every expected failure (bad credentials, lockout, malformed or
// revoked tokens, replayed refresh tokens) surfaces as a nil result
// with a sentinel error, never a panic. Callers must treat any failure
// as a plain deny: Authenticate deliberately does not reveal which
// check rejected the attempt.
package auth
