// Package flows contains the orchestration behind the Engine's login,
// refresh, logout and verification operations.
//
// Each flow function (RunLogin, RunRefresh, RunLogout, RunVerify) accepts a
// typed dependency struct and returns a classified result. The engine maps
// the classification to public result codes, emits events and counts
// metrics; flows do neither.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import portalauth (to avoid import cycles).
//   - Own the ledger, guard or limiter it coordinates.
package flows
