package portalauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/guard"
	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

const tokenTypeBearer = "Bearer"

// Login checks identifier and secret against the identity directory and, on
// success, opens a session and returns an access and refresh token pair.
//
// Admission runs first: the IP allow and deny lists, the login rate limit
// keyed by the identifier, then the lockout state. An unknown identifier and
// a wrong secret both yield [CodeInvalidCredentials] and count toward
// lockout. A directory timeout yields [CodeServiceUnavailable] and does not.
func (e *Engine) Login(ctx context.Context, identifier, secret string, lc LoginContext) LoginResult {
	res := flows.RunLogin(ctx, identifier, secret, lc, e.flows.Login)
	return e.finishLogin(res, lc)
}

// LoginWithIdentity opens a session for an identity established by an
// external provider. ext.ID is looked up in the directory; from there the
// same risk checks and issuance as [Engine.Login] apply.
func (e *Engine) LoginWithIdentity(ctx context.Context, ext ExternalIdentity, lc LoginContext) LoginResult {
	res := flows.RunIdentityLogin(ctx, ext, lc, e.flows.Login)
	return e.finishLogin(res, lc)
}

func (e *Engine) finishLogin(res flows.LoginResult, lc LoginContext) LoginResult {
	out := LoginResult{
		RiskScore: res.Assessment.Score,
		RetryAt:   res.RetryAt,
		UnlockAt:  res.UnlockAt,
	}

	if res.Failure == flows.LoginFailureNone {
		issued := res.Issued
		out.Result = ok()
		out.AccessToken = issued.AccessToken
		out.RefreshToken = issued.RefreshToken
		out.TokenType = tokenTypeBearer
		out.ExpiresIn = int64(e.jwt.TTL(jwt.KindAccess) / time.Second)
		out.Scope = strings.Join(issued.Access.Permissions, " ")
		out.SessionID = issued.SessionID
		out.User = summarize(res.User)

		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricSessionCreated)
		e.logger.Info("login succeeded",
			zap.String("user_id", res.User.ID),
			zap.String("session_id", issued.SessionID),
			zap.Int("risk", res.Assessment.Score),
		)
		e.emit(Event{
			Type:      EventLoginSuccess,
			UserID:    res.User.ID,
			SessionID: issued.SessionID,
			IP:        lc.IP,
			Success:   true,
			Details: map[string]string{
				"device_id": issued.Access.DeviceID,
				"location":  res.Assessment.Location,
				"risk":      fmt.Sprint(res.Assessment.Score),
			},
		})
		return out
	}

	code := loginFailureCode(res.Failure)
	out.Result = fail(code, res.Err)
	if res.Failure == flows.LoginFailureMFARequired || res.Failure == flows.LoginFailurePasswordChange {
		out.User = summarize(res.User)
	}

	switch res.Failure {
	case flows.LoginFailureIPBlocked:
		e.metricInc(MetricLoginIPBlocked)
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricRateLimitHit)
		}
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
	case flows.LoginFailureUnavailable, flows.LoginFailureDirectoryTimeout:
		e.metricInc(MetricDirectoryUnavailable)
	case flows.LoginFailureSuspicious:
		e.metricInc(MetricLoginSuspicious)
	case flows.LoginFailureMFARequired:
		e.metricInc(MetricLoginMFARequired)
	}
	e.metricInc(MetricLoginFailure)

	userID := ""
	if res.User != nil {
		userID = res.User.ID
	}
	e.logger.Info("login failed",
		zap.String("code", string(code)),
		zap.String("user_id", userID),
		zap.Error(res.Err),
	)
	e.emit(Event{
		Type:    EventLoginFailure,
		UserID:  userID,
		IP:      lc.IP,
		Code:    code,
		Details: map[string]string{"identifier": res.Subject},
	})

	if res.Failure == flows.LoginFailureSuspicious {
		e.emit(Event{
			Type:   EventSuspicious,
			UserID: userID,
			IP:     lc.IP,
			Code:   CodeSuspiciousActivity,
			Details: map[string]string{
				"risk":         fmt.Sprint(res.Assessment.Score),
				"new_device":   fmt.Sprint(res.Assessment.NewDevice),
				"new_location": fmt.Sprint(res.Assessment.NewLocation),
				"unusual_hour": fmt.Sprint(res.Assessment.UnusualHour),
			},
		})
	}
	if res.Lockout.Engaged {
		e.metricInc(MetricLockoutEngaged)
		e.logger.Warn("lockout engaged",
			zap.String("identifier", res.Subject),
			zap.Int("failures", res.Lockout.Count),
			zap.Time("until", res.Lockout.Until),
		)
		e.emit(Event{
			Type:    EventLockoutEngaged,
			IP:      lc.IP,
			Code:    CodeAccountLocked,
			Details: map[string]string{"identifier": res.Subject, "until": res.Lockout.Until.Format(time.RFC3339)},
		})
	}
	return out
}

func loginFailureCode(kind flows.LoginFailureKind) Code {
	switch kind {
	case flows.LoginFailureIPBlocked:
		return CodeIPBlocked
	case flows.LoginFailureRateLimited:
		return CodeRateLimited
	case flows.LoginFailureLocked:
		return CodeAccountLocked
	case flows.LoginFailureInvalidCredentials:
		return CodeInvalidCredentials
	case flows.LoginFailureInactive:
		return CodeUserInactive
	case flows.LoginFailureSuspicious:
		return CodeSuspiciousActivity
	case flows.LoginFailureMFARequired:
		return CodeMFARequired
	case flows.LoginFailurePasswordChange:
		return CodePasswordChangeRequired
	default:
		return CodeServiceUnavailable
	}
}

// consumeLoginRate draws from the global bucket and then from the
// identifier's login bucket.
func (e *Engine) consumeLoginRate(ctx context.Context, key string) (rate.Decision, error) {
	if e.limiter == nil {
		return rate.Decision{Allowed: true}, nil
	}
	global, err := e.limiter.Consume(ctx, "*", rate.CategoryGlobal)
	if err != nil || !global.Allowed {
		return global, err
	}
	return e.limiter.Consume(ctx, key, rate.CategoryLogin)
}

// issueLogin mints the token pair of a successful login and records the new
// session. The session cap is enforced by the ledger.
func (e *Engine) issueLogin(ctx context.Context, user *User, lc LoginContext, a guard.Assessment) (flows.Issued, error) {
	now := e.now()
	deviceID := lc.DeviceID
	if deviceID == "" {
		deviceID = internal.DeviceFingerprint(lc.UserAgent, lc.IP)
	}
	sessionID := fmt.Sprintf("%s:%s:%d", user.ID, deviceID, now.UnixNano())

	accessToken, access, err := e.jwt.Sign(jwt.Claims{
		Kind:        jwt.KindAccess,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: e.roles.Expand(user.Role, user.Permissions),
		Scopes:      user.Scopes,
		DeviceID:    deviceID,
		SessionID:   sessionID,

		RegisteredClaims: jwtSubject(user.ID),
	})
	if err != nil {
		return flows.Issued{}, err
	}

	expires := now.Add(e.config.JWT.RefreshTTL)
	if lc.RememberMe {
		expires = now.Add(e.config.Session.RememberMeDuration)
	}
	info := internal.ParseUserAgent(lc.UserAgent)
	evicted, err := e.ledger.Put(ctx, session.Session{
		UserID:       user.ID,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		Device:       session.DeviceInfo{Browser: info.Browser, OS: info.OS, Type: info.Type},
		IP:           lc.IP,
		Location:     a.Location,
		LoginTime:    now,
		LastActivity: now,
		Active:       true,
		RememberMe:   lc.RememberMe,
		ExpiresAt:    expires,
	}, session.TokenRecord{
		TokenID:   access.ID,
		Kind:      string(jwt.KindAccess),
		IssuedAt:  access.IssuedAtTime(),
		ExpiresAt: access.ExpiresAtTime(),
	})
	if err != nil {
		return flows.Issued{}, err
	}

	refreshToken, refresh, err := e.issueRefresh(ctx, session.Chain{
		UserID:    user.ID,
		SessionID: sessionID,
		DeviceID:  deviceID,
	})
	if err != nil {
		return flows.Issued{}, err
	}

	return flows.Issued{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Access:       access,
		Refresh:      refresh,
		SessionID:    sessionID,
		Evicted:      evicted,
	}, nil
}
