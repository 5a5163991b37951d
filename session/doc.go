// Package session implements the Session Ledger: the authoritative store of
// active sessions, issued tokens, refresh-token chains and the token
// blacklist.
//
// # Lifecycle
//
// A [Ledger] is built once with [NewLedger], made usable by [Ledger.Connect]
// and released by [Ledger.Disconnect]. Calls on a disconnected ledger return
// [ErrLedgerUnavailable]. When a [Backend] is supplied, every mutation is
// written through and Connect restores unexpired state from it;
// [RedisBackend] is the Redis implementation.
//
// # Expiry
//
// Tokens, sessions, chains, blacklist entries and revoked-family marks all
// share one min-heap of deadlines. [Ledger.Sweep] pops due keys and removes
// each one only if it is still present and still due. Reads evict expired
// tokens lazily, so correctness never depends on the sweep having run.
//
// # Architecture boundaries
//
// The ledger stores records; it does not sign or parse tokens and does not
// decide when a family must be revoked. Those decisions belong to the Engine.
//
// # What this package must NOT do
//
//   - Import portalauth, jwt, or guard.
//   - Store raw token strings. Only token ids (jti) are kept.
//   - Call OnRemove hooks while holding a lock.
package session
