// Package internal holds helpers private to portalauth: device fingerprints,
// user-agent classification and log-safe token digests.
//
// # Sub-packages
//
//   - audit: observer sinks and the async dispatcher
//   - flows: login and refresh orchestration as dependency-injected functions
//   - keylock: striped per-key mutexes
//   - rate: token-bucket rate limiting (memory and Redis)
//   - sweeper: periodic background loops
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalauth API.
//   - Log raw tokens.
package internal
