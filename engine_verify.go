package portalauth

import (
	"context"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/permission"
	"github.com/MrEthical07/portalauth/session"
)

func jwtSubject(userID string) gjwt.RegisteredClaims {
	return gjwt.RegisteredClaims{Subject: userID}
}

// Verify checks token against the expected kind. The blacklist is consulted
// before the signature, and expiry is reported even for tokens whose
// signature would not verify. Malformed input never panics; it yields
// [ReasonMalformed].
//
//	Performance: one ledger read lock and one signature check.
func (e *Engine) Verify(token string, kind jwt.Kind) Verification {
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
	}

	res := flows.RunVerify(token, kind, e.flows.Verify)

	if !start.IsZero() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if res.Valid() {
		e.metricInc(MetricVerifySuccess)
		return Verification{Valid: true, Claims: res.Claims}
	}
	e.metricInc(MetricVerifyFailure)
	return Verification{Reason: res.Reason, Claims: res.Claims, Err: res.Err}
}

// IssueAccess signs a standalone access token for c. The token is not
// attached to a session; it verifies until it expires or is blacklisted.
func (e *Engine) IssueAccess(c AccessClaims) (string, *jwt.Claims, error) {
	return e.jwt.Sign(jwt.Claims{
		Kind:        jwt.KindAccess,
		Username:    c.Username,
		Email:       c.Email,
		Role:        c.Role,
		Permissions: e.roles.Expand(c.Role, c.Permissions),
		Scopes:      permission.Normalize(c.Scopes),
		DeviceID:    c.DeviceID,
		SessionID:   c.SessionID,

		RegisteredClaims: jwtSubject(c.UserID),
	})
}

// IssueRefresh signs a refresh token and registers its chain. With a
// parentFamilyID the token joins that family with the rotation count of the
// family's newest live token plus one; otherwise it starts a new family with
// count 0. A non-empty sessionID must name a live session.
func (e *Engine) IssueRefresh(ctx context.Context, userID, deviceID, sessionID, parentFamilyID string) (string, *jwt.Claims, error) {
	chain := session.Chain{
		UserID:    userID,
		SessionID: sessionID,
		DeviceID:  deviceID,
	}
	if parentFamilyID != "" {
		head, err := e.ledger.FamilyChain(parentFamilyID)
		if err != nil {
			return "", nil, err
		}
		chain.FamilyID = parentFamilyID
		chain.RotationCount = head.RotationCount + 1
	}
	return e.issueRefresh(ctx, chain)
}

// Blacklist revokes token until its natural expiry, or for
// Blacklist.Retention when it has already expired. The signature must
// verify; expiry, issuer and audience are not checked. Blacklisting twice
// is harmless.
func (e *Engine) Blacklist(ctx context.Context, token string) Result {
	claims, err := e.jwt.Inspect(token)
	if err != nil {
		return fail(CodeTokenMalformed, err)
	}

	now := e.now()
	deadline := claims.ExpiresAtTime()
	if !deadline.After(now) {
		deadline = now.Add(e.config.Blacklist.Retention)
	}
	if err := e.ledger.Blacklist(ctx, claims.ID, deadline, session.ReasonExplicit); err != nil {
		return fail(CodeServiceUnavailable, err)
	}

	e.metricInc(MetricTokenBlacklisted)
	e.logger.Info("token blacklisted",
		zap.String("token", internal.TokenDigest(claims.ID)),
		zap.String("kind", string(claims.Kind)),
		zap.Time("deadline", deadline),
	)
	e.emit(Event{
		Type:      EventTokenBlacklisted,
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Success:   true,
		Details: map[string]string{
			"kind":     string(claims.Kind),
			"deadline": deadline.Format(time.RFC3339),
		},
	})
	return ok()
}

// AuthenticateRequest authenticates an Authorization header value of the
// exact form "Bearer <token>" and checks that the access token grants every
// required permission and scope. A "*" grant satisfies any requirement.
// On success the owning session is touched and, when rate limiting is on, one
// admission is drawn from the subject's api bucket.
func (e *Engine) AuthenticateRequest(ctx context.Context, header string, requiredPermissions, requiredScopes []string) AuthResult {
	token, found := bearerToken(header)
	if !found {
		return AuthResult{Result: fail(CodeNoToken, nil)}
	}

	v := e.Verify(token, jwt.KindAccess)
	if !v.Valid {
		return AuthResult{Result: fail(v.Code(), v.Err)}
	}
	claims := v.Claims

	missing := permission.Missing(claims.Permissions, requiredPermissions)
	missing = append(missing, permission.Missing(claims.Scopes, requiredScopes)...)
	if len(missing) > 0 {
		e.metricInc(MetricPermissionDenied)
		return AuthResult{
			Result:    fail(CodeInsufficientPerms, nil),
			UserID:    claims.Subject,
			SessionID: claims.SessionID,
			Claims:    claims,
			Missing:   missing,
		}
	}

	if e.limiter != nil {
		decision, err := e.limiter.Consume(ctx, claims.Subject, rate.CategoryAPI)
		if err != nil {
			return AuthResult{Result: fail(CodeServiceUnavailable, err)}
		}
		if !decision.Allowed {
			e.metricInc(MetricRateLimitHit)
			return AuthResult{
				Result:  fail(CodeRateLimited, rate.ErrRateLimited),
				UserID:  claims.Subject,
				Claims:  claims,
				RetryAt: decision.ResetTime,
			}
		}
	}

	if err := e.ledger.Touch(ctx, claims.ID); err != nil {
		// Standalone tokens from IssueAccess have no session to touch.
		e.logger.Debug("touch skipped", zap.String("token", internal.TokenDigest(claims.ID)), zap.Error(err))
	}

	return AuthResult{
		Result:    ok(),
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		Claims:    claims,
	}
}

// bearerToken extracts the token of "Bearer <token>". Any other scheme, a
// bare "Bearer" or embedded whitespace is rejected.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := header[len(prefix):]
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", false
	}
	return token, true
}
