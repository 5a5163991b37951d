package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureReuse
	RefreshFailureRotationLimit
	RefreshFailureNotFound
	RefreshFailureUserMissing
	RefreshFailureInactive
	RefreshFailureUnavailable
	RefreshFailureDirectoryTimeout
	RefreshFailureIssue
)

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	RotationEnabled  bool
	ReuseDetection   bool
	RotationCeiling  int
	DirectoryTimeout time.Duration
	FamilyRetention  time.Duration
	Now              func() time.Time

	Verify          func(token string) VerifyResult
	Inspect         func(token string) (*jwt.Claims, error)
	BlacklistReason func(tokenID string) (string, bool, error)
	Chain           func(tokenID string) (session.Chain, error)
	ConsumeChain    func(ctx context.Context, tokenID string) (session.Chain, error)
	RevokeFamily    func(ctx context.Context, familyID string, deadline time.Time, reason string) (int, error)
	LookupUser      func(ctx context.Context, id string) (*User, error)
	Permissions     func(ctx context.Context, userID string) ([]string, error)
	IssueAccess     func(ctx context.Context, user *User, chain session.Chain) (string, *jwt.Claims, error)
	IssueRefresh    func(ctx context.Context, chain session.Chain) (string, *jwt.Claims, error)
}

// RefreshResult carries the new tokens or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Reason       Reason
	Err          error
	Chain        session.Chain
	User         *User
	Revoked      int
	AccessToken  string
	Access       *jwt.Claims
	RefreshToken string
	Refresh      *jwt.Claims
}

// FamilyOf returns the rotation family of a refresh token. The first token of
// a family carries no family claim; its own jti names the family.
func FamilyOf(claims *jwt.Claims) string {
	if claims == nil {
		return ""
	}
	if claims.FamilyID != "" {
		return claims.FamilyID
	}
	return claims.ID
}

// RunRefresh verifies a refresh token, enforces the rotation ceiling and
// mints a new access token, plus a new refresh token in the same family when
// rotation is enabled. With rotation enabled, of several concurrent refreshes
// of the same token exactly one succeeds.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	v := deps.Verify(refreshToken)
	if !v.Valid() {
		return refreshVerifyFailure(ctx, refreshToken, v, deps)
	}
	claims := v.Claims

	chain, err := deps.Chain(claims.ID)
	if err != nil {
		return chainFailure(err)
	}

	if deps.RotationCeiling > 0 && chain.RotationCount > deps.RotationCeiling {
		n, err := deps.RevokeFamily(ctx, chain.FamilyID, familyDeadline(chain, deps), session.ReasonRotationLimit)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, Chain: chain}
		}
		return RefreshResult{Failure: RefreshFailureRotationLimit, Chain: chain, Revoked: n}
	}

	user, err := CallDirectory(ctx, deps.DirectoryTimeout, func(ctx context.Context) (*User, error) {
		return deps.LookupUser(ctx, chain.UserID)
	})
	if err != nil {
		return refreshDirectoryFailure(err, chain)
	}
	if user == nil {
		return RefreshResult{Failure: RefreshFailureUserMissing, Chain: chain}
	}
	if user.Inactive {
		return RefreshResult{Failure: RefreshFailureInactive, Chain: chain, User: user}
	}

	granted := *user
	if deps.Permissions != nil {
		extra, err := CallDirectory(ctx, deps.DirectoryTimeout, func(ctx context.Context) ([]string, error) {
			return deps.Permissions(ctx, user.ID)
		})
		if err != nil {
			return refreshDirectoryFailure(err, chain)
		}
		granted.Permissions = append(append([]string(nil), user.Permissions...), extra...)
	}

	if deps.RotationEnabled {
		consumed, err := deps.ConsumeChain(ctx, claims.ID)
		if err != nil {
			return chainFailure(err)
		}
		chain = consumed
	}

	res := RefreshResult{Chain: chain, User: &granted}
	res.AccessToken, res.Access, err = deps.IssueAccess(ctx, &granted, chain)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, Chain: chain}
		}
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Chain: chain}
	}

	if deps.RotationEnabled {
		next := chain
		next.RotationCount++
		res.RefreshToken, res.Refresh, err = deps.IssueRefresh(ctx, next)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrFamilyRevoked) {
				return RefreshResult{Failure: RefreshFailureNotFound, Err: err, Chain: chain}
			}
			return RefreshResult{Failure: RefreshFailureIssue, Err: err, Chain: chain}
		}
	} else {
		res.RefreshToken = refreshToken
		res.Refresh = claims
	}
	return res
}

func refreshVerifyFailure(ctx context.Context, token string, v VerifyResult, deps RefreshDeps) RefreshResult {
	if v.Err != nil {
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: v.Err}
	}
	if v.Reason != ReasonBlacklisted || v.Claims == nil {
		return RefreshResult{Failure: RefreshFailureVerify, Reason: v.Reason}
	}

	reason, ok, err := deps.BlacklistReason(v.Claims.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: err}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureVerify, Reason: v.Reason}
	}

	switch reason {
	case session.ReasonRotationLimit:
		return RefreshResult{Failure: RefreshFailureRotationLimit, Reason: v.Reason}
	case session.ReasonRotated:
		if !deps.ReuseDetection {
			break
		}
		// Only a correctly signed token may burn its family.
		claims, err := deps.Inspect(token)
		if err != nil || claims.Kind != jwt.KindRefresh {
			break
		}
		deadline := deps.Now().Add(deps.FamilyRetention)
		if exp := claims.ExpiresAtTime(); exp.After(deadline) {
			deadline = exp
		}
		n, err := deps.RevokeFamily(ctx, FamilyOf(claims), deadline, session.ReasonReuse)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureUnavailable, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureReuse, Reason: v.Reason, Revoked: n}
	}
	return RefreshResult{Failure: RefreshFailureVerify, Reason: v.Reason}
}

func chainFailure(err error) RefreshResult {
	switch {
	case errors.Is(err, session.ErrLedgerUnavailable):
		return RefreshResult{Failure: RefreshFailureUnavailable, Err: err}
	case errors.Is(err, session.ErrFamilyRevoked):
		return RefreshResult{Failure: RefreshFailureVerify, Reason: ReasonBlacklisted, Err: err}
	default:
		return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
	}
}

func refreshDirectoryFailure(err error, chain session.Chain) RefreshResult {
	if errors.Is(err, ErrDirectoryTimeout) {
		return RefreshResult{Failure: RefreshFailureDirectoryTimeout, Err: err, Chain: chain}
	}
	return RefreshResult{Failure: RefreshFailureUnavailable, Err: err, Chain: chain}
}

func familyDeadline(chain session.Chain, deps RefreshDeps) time.Time {
	deadline := deps.Now().Add(deps.FamilyRetention)
	if chain.ExpiresAt.After(deadline) {
		return chain.ExpiresAt
	}
	return deadline
}
