package portalauth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/session"
)

// Logout ends the session of accessToken. Its access and refresh tokens are
// blacklisted and the refresh chain dropped. With opts.RevokeAll every
// session and refresh family of the token's owner is ended instead.
//
// Logout is idempotent: a token that is already revoked succeeds again.
func (e *Engine) Logout(ctx context.Context, accessToken string, opts LogoutOptions) Result {
	res := flows.RunLogout(ctx, accessToken, opts.RevokeAll, e.flows.Logout)

	switch res.Failure {
	case flows.LogoutFailureVerify:
		return fail(Verification{Reason: res.Reason}.Code(), nil)
	case flows.LogoutFailureUnavailable:
		e.logger.Warn("logout unavailable", zap.Error(res.Err))
		return fail(CodeServiceUnavailable, res.Err)
	}
	if res.AlreadyRevoked {
		return ok()
	}

	if opts.RevokeAll {
		e.metricInc(MetricLogoutAll)
	} else {
		e.metricInc(MetricLogout)
	}

	sessionID := res.Claims.SessionID
	if len(res.Sessions) == 1 {
		sessionID = res.Sessions[0].SessionID
	}
	e.logger.Info("logout",
		zap.String("user_id", res.Claims.Subject),
		zap.Bool("revoke_all", opts.RevokeAll),
		zap.Int("sessions", len(res.Sessions)),
	)
	e.emit(Event{
		Type:      EventLogout,
		UserID:    res.Claims.Subject,
		SessionID: sessionID,
		Success:   true,
		Details: map[string]string{
			"revoke_all": fmt.Sprint(opts.RevokeAll),
			"sessions":   fmt.Sprint(len(res.Sessions)),
		},
	})
	return ok()
}

// RevokeSession ends one session by id, blacklisting its live tokens.
func (e *Engine) RevokeSession(ctx context.Context, sessionID string) Result {
	sess, found, err := e.ledger.RemoveSession(ctx, sessionID, session.ReasonRevoked)
	if err != nil {
		return fail(CodeServiceUnavailable, err)
	}
	if !found {
		return fail(CodeSessionNotFound, nil)
	}

	e.metricInc(MetricLogout)
	e.emit(Event{
		Type:      EventLogout,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		IP:        sess.IP,
		Success:   true,
		Details:   map[string]string{"reason": session.ReasonRevoked},
	})
	return ok()
}

// ListSessions returns the user's sessions, most recently active first.
func (e *Engine) ListSessions(userID string) ([]session.Session, error) {
	sessions, err := e.ledger.ListByUser(userID)
	if err != nil {
		return nil, wrapCode(CodeServiceUnavailable, err)
	}
	return sessions, nil
}

// ActiveSessionCount returns how many sessions userID holds.
func (e *Engine) ActiveSessionCount(userID string) (int, error) {
	n, err := e.ledger.ActiveCount(userID)
	if err != nil {
		return 0, wrapCode(CodeServiceUnavailable, err)
	}
	return n, nil
}

// SessionStats summarizes every session in the ledger.
func (e *Engine) SessionStats() (session.Stats, error) {
	stats, err := e.ledger.Stats()
	if err != nil {
		return session.Stats{}, wrapCode(CodeServiceUnavailable, err)
	}
	return stats, nil
}
