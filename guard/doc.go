// Package guard implements the Account Guard: a per-subject lockout state
// machine, the suspicious-activity risk scorer, password history and the
// security event and login history ledgers.
//
// # Lockout
//
// Each subject is Unlocked or Locked(until). [Guard.RecordFailure] counts
// consecutive failures and locks at MaxAttempts; [Guard.RecordSuccess] and
// [Guard.ResetFailures] clear the counter. [Guard.IsLocked] unlocks lazily once
// the lock has run out.
//
// # Risk
//
// [Guard.Assess] adds NewLocationWeight for an unseen coarse location,
// NewDeviceWeight for an unseen device fingerprint and UnusualHourWeight for a
// login hour outside the user's recent success hours. The hour check only
// applies once HourWarmup successful logins exist. A user without any
// successful login scores 0. Known devices and locations are updated after
// every assessment, blocked or not.
//
// # Concurrency
//
// All read-modify-write sequences on one subject run under that subject's
// striped lock; different subjects proceed in parallel.
//
// # What this package must NOT do
//
//   - Import portalauth, jwt, or session.
//   - Store plaintext passwords. History holds hashes only.
package guard
