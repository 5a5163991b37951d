package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureVerify
	LogoutFailureUnavailable
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Verify              func(token string) VerifyResult
	RemoveSession       func(ctx context.Context, sessionID, reason string) (session.Session, bool, error)
	RemoveAllForUser    func(ctx context.Context, userID, reason string) ([]session.Session, error)
	RemoveChainsForUser func(ctx context.Context, userID, reason string) (int, error)
	Blacklist           func(ctx context.Context, tokenID string, deadline time.Time, reason string) error
}

// LogoutResult reports what a logout removed. AlreadyRevoked is set when the
// presented token was revoked before this call.
type LogoutResult struct {
	Failure        LogoutFailureKind
	Reason         Reason
	Err            error
	Claims         *jwt.Claims
	Sessions       []session.Session
	AlreadyRevoked bool
}

// RunLogout ends the session of accessToken, or every session of its owner
// when revokeAll is set. Logging out with an already revoked token succeeds.
func RunLogout(ctx context.Context, accessToken string, revokeAll bool, deps LogoutDeps) LogoutResult {
	v := deps.Verify(accessToken)
	switch {
	case v.Err != nil:
		return LogoutResult{Failure: LogoutFailureUnavailable, Err: v.Err}
	case v.Reason == ReasonBlacklisted:
		return LogoutResult{Claims: v.Claims, AlreadyRevoked: true}
	case !v.Valid():
		return LogoutResult{Failure: LogoutFailureVerify, Reason: v.Reason}
	}
	claims := v.Claims
	res := LogoutResult{Claims: claims}

	if revokeAll {
		removed, err := deps.RemoveAllForUser(ctx, claims.Subject, session.ReasonLogoutAll)
		if err != nil {
			return logoutFailure(err, claims)
		}
		if _, err := deps.RemoveChainsForUser(ctx, claims.Subject, session.ReasonLogoutAll); err != nil {
			return logoutFailure(err, claims)
		}
		res.Sessions = removed
		if err := deps.Blacklist(ctx, claims.ID, claims.ExpiresAtTime(), session.ReasonLogoutAll); err != nil {
			return logoutFailure(err, claims)
		}
		return res
	}

	if claims.SessionID != "" {
		sess, ok, err := deps.RemoveSession(ctx, claims.SessionID, session.ReasonLogout)
		if err != nil {
			return logoutFailure(err, claims)
		}
		if ok {
			res.Sessions = []session.Session{sess}
			return res
		}
	}

	if err := deps.Blacklist(ctx, claims.ID, claims.ExpiresAtTime(), session.ReasonLogout); err != nil {
		return logoutFailure(err, claims)
	}
	return res
}

func logoutFailure(err error, claims *jwt.Claims) LogoutResult {
	return LogoutResult{Failure: LogoutFailureUnavailable, Err: err, Claims: claims}
}
