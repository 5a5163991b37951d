// Package portalauth is the authentication and session security core of a
// multi-service portal. It mints and verifies JWT access and refresh tokens,
// keeps a live ledger of per-user sessions across devices, rotates refresh
// tokens within families, and applies adaptive defenses: rate limiting,
// account lockout, suspicious-activity scoring and password policy.
//
// An [Engine] is assembled once with [Builder], started with [Engine.Start]
// and is safe for concurrent use until [Engine.Close]:
//
//	engine, err := portalauth.New().
//		WithConfig(cfg).
//		WithDirectory(dir).
//		Build()
//	if err != nil {
//		return err
//	}
//	if err := engine.Start(ctx); err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	res := engine.Login(ctx, "alice", secret, portalauth.LoginContext{IP: ip, UserAgent: ua})
//	if !res.Success {
//		// res.Code is one of the Code constants; res.RetryAt and res.UnlockAt
//		// carry backoff hints.
//	}
//
// # Architecture boundaries
//
// portalauth is the public surface: [Engine], [Builder], [Config], result
// types and events. The session ledger ([session.Ledger]), the account guard
// ([guard.Guard]) and token signing ([jwt.Manager]) are importable on their
// own. Flow orchestration, rate limiting, audit dispatch and metrics live
// under internal/.
//
// # Failure model
//
// Construction errors are returned by [Builder.Build] as [*ConfigError].
// Runtime failures never panic and are never returned as bare errors: every
// result carries Success, a machine-readable [Code] and an Err that wraps the
// code's sentinel, so both switch-on-code and errors.Is work.
//
// # Performance contract
//
// [Engine.Verify] is the hot path: one ledger read lock for the blacklist and
// one signature check, no I/O. Login and refresh may call the identity
// directory, each call bounded by Directory.Timeout.
package portalauth
