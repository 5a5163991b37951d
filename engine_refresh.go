package portalauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

var errUserNotFound = errors.New("user no longer exists")

// Refresh exchanges a refresh token for a new access token. With rotation
// enabled it also returns a new refresh token of the same family and the
// presented one stops verifying; of several concurrent calls with the same
// token exactly one succeeds.
//
// Once a family has rotated more than Refresh.RotationCeiling times, the
// whole family is revoked and [CodeRotationLimitExceeded] is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)

	if res.Failure == flows.RefreshFailureNone {
		e.metricInc(MetricRefreshSuccess)
		count := res.Chain.RotationCount
		if res.Refresh != nil {
			count = res.Refresh.RotationCount
		}
		e.emit(Event{
			Type:      EventRefresh,
			UserID:    res.Chain.UserID,
			SessionID: res.Chain.SessionID,
			Success:   true,
			Details: map[string]string{
				"family_id": res.Chain.FamilyID,
				"rotation":  fmt.Sprint(count),
			},
		})
		return RefreshResult{
			Result:        ok(),
			AccessToken:   res.AccessToken,
			RefreshToken:  res.RefreshToken,
			TokenType:     tokenTypeBearer,
			ExpiresIn:     int64(e.jwt.TTL(jwt.KindAccess) / time.Second),
			RotationCount: count,
		}
	}

	e.metricInc(MetricRefreshFailure)
	code, cause := e.refreshFailure(res)

	switch res.Failure {
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.familyRevoked(res, session.ReasonReuse)
	case flows.RefreshFailureRotationLimit:
		e.metricInc(MetricRotationLimitExceeded)
		if res.Chain.FamilyID != "" {
			e.familyRevoked(res, session.ReasonRotationLimit)
		}
	case flows.RefreshFailureUnavailable, flows.RefreshFailureDirectoryTimeout:
		e.logger.Warn("refresh unavailable", zap.Error(res.Err))
	}

	return RefreshResult{Result: fail(code, cause)}
}

func (e *Engine) refreshFailure(res flows.RefreshResult) (Code, error) {
	switch res.Failure {
	case flows.RefreshFailureVerify:
		return Verification{Reason: res.Reason}.Code(), res.Err
	case flows.RefreshFailureReuse:
		return CodeTokenBlacklisted, ErrRefreshReuse
	case flows.RefreshFailureRotationLimit:
		return CodeRotationLimitExceeded, res.Err
	case flows.RefreshFailureNotFound:
		return CodeRefreshTokenNotFound, res.Err
	case flows.RefreshFailureUserMissing:
		return CodeUserInactive, errUserNotFound
	case flows.RefreshFailureInactive:
		return CodeUserInactive, res.Err
	default:
		return CodeServiceUnavailable, res.Err
	}
}

func (e *Engine) familyRevoked(res flows.RefreshResult, reason string) {
	e.metricInc(MetricFamilyRevoked)
	e.logger.Warn("refresh family revoked",
		zap.String("family", internal.TokenDigest(res.Chain.FamilyID)),
		zap.String("user_id", res.Chain.UserID),
		zap.String("reason", reason),
		zap.Int("revoked", res.Revoked),
	)
	e.emit(Event{
		Type:      EventFamilyRevoked,
		UserID:    res.Chain.UserID,
		SessionID: res.Chain.SessionID,
		Code:      CodeTokenBlacklisted,
		Details: map[string]string{
			"reason":  reason,
			"revoked": fmt.Sprint(res.Revoked),
		},
	})
}

// issueRefresh signs a refresh token for chain and registers it as the live
// link of its family. An empty FamilyID starts a new family named after the
// token's own jti.
func (e *Engine) issueRefresh(ctx context.Context, chain session.Chain) (string, *jwt.Claims, error) {
	token, claims, err := e.jwt.Sign(jwt.Claims{
		Kind:          jwt.KindRefresh,
		DeviceID:      chain.DeviceID,
		SessionID:     chain.SessionID,
		FamilyID:      chain.FamilyID,
		RotationCount: chain.RotationCount,

		RegisteredClaims: jwtSubject(chain.UserID),
	})
	if err != nil {
		return "", nil, err
	}

	chain.TokenID = claims.ID
	chain.ExpiresAt = claims.ExpiresAtTime()
	if chain.FamilyID == "" {
		chain.FamilyID = claims.ID
	}
	if err := e.ledger.PutChain(ctx, chain); err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// issueAccessForChain mints the access token handed out by a refresh and
// attaches it to the chain's session.
func (e *Engine) issueAccessForChain(ctx context.Context, user *User, chain session.Chain) (string, *jwt.Claims, error) {
	token, claims, err := e.jwt.Sign(jwt.Claims{
		Kind:        jwt.KindAccess,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: e.roles.Expand(user.Role, user.Permissions),
		Scopes:      user.Scopes,
		DeviceID:    chain.DeviceID,
		SessionID:   chain.SessionID,

		RegisteredClaims: jwtSubject(user.ID),
	})
	if err != nil {
		return "", nil, err
	}

	if chain.SessionID != "" {
		err := e.ledger.AddToken(ctx, session.TokenRecord{
			TokenID:   claims.ID,
			SessionID: chain.SessionID,
			Kind:      string(jwt.KindAccess),
			IssuedAt:  claims.IssuedAtTime(),
			ExpiresAt: claims.ExpiresAtTime(),
		})
		if err != nil {
			return "", nil, err
		}
	}
	return token, claims, nil
}
