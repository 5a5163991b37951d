package portalauth

import (
	"context"
	"net/netip"

	"github.com/MrEthical07/portalauth/guard"
	"github.com/MrEthical07/portalauth/password"
)

// admitIP applies the deny list, then the allow list. An address that does
// not parse is only refused when an allow list is configured.
func (e *Engine) admitIP(ip string) bool {
	if len(e.allow) == 0 && len(e.deny) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return len(e.allow) == 0
	}
	addr = addr.Unmap()

	for _, p := range e.deny {
		if p.Contains(addr) {
			return false
		}
	}
	if len(e.allow) == 0 {
		return true
	}
	for _, p := range e.allow {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ValidatePassword checks pw against the configured policy. user supplies
// the fragments a password must not contain.
func (e *Engine) ValidatePassword(pw string, user password.UserData) password.Result {
	return e.policy.Validate(pw, user)
}

// HashPassword hashes pw with the configured hasher.
func (e *Engine) HashPassword(pw string) (string, error) {
	return e.hasher.Hash(pw)
}

// CheckPasswordHistory reports whether pw matches one of the user's retained
// password hashes.
func (e *Engine) CheckPasswordHistory(_ context.Context, userID, pw string) (bool, error) {
	return e.guard.CheckPasswordHistory(userID, pw)
}

// RecordPasswordChange appends hash to the user's password history.
func (e *Engine) RecordPasswordChange(_ context.Context, userID, hash string) {
	e.guard.RecordPasswordChange(userID, hash)
}

// SecurityEvents returns the user's security events, newest first.
func (e *Engine) SecurityEvents(userID string, limit int) []guard.SecurityEvent {
	return e.guard.SecurityEvents(userID, limit)
}

// LoginHistory returns the user's recorded login attempts, newest first.
func (e *Engine) LoginHistory(userID string, limit int) []guard.LoginRecord {
	return e.guard.LoginHistory(userID, limit)
}

// TrustDevice marks a known device of the user as trusted. It reports
// whether the device was known.
func (e *Engine) TrustDevice(userID, fingerprint string) bool {
	return e.guard.TrustDevice(userID, fingerprint)
}

// IsLocked reports the lockout state of a login identifier or user id.
func (e *Engine) IsLocked(subject string) guard.LockState {
	return e.guard.IsLocked(subject)
}

// ConsumeRate draws one admission for key from category. With rate limiting
// disabled every call is allowed.
func (e *Engine) ConsumeRate(ctx context.Context, key string, category RateCategory) (RateDecision, error) {
	if e.limiter == nil {
		return RateDecision{Allowed: true}, nil
	}
	d, err := e.limiter.Consume(ctx, key, category)
	if err != nil {
		return RateDecision{}, wrapCode(CodeServiceUnavailable, err)
	}
	if !d.Allowed {
		e.metricInc(MetricRateLimitHit)
	}
	return d, nil
}

// ResetRate empties the record of key in category, refilling its bucket.
func (e *Engine) ResetRate(ctx context.Context, key string, category RateCategory) error {
	if e.limiter == nil {
		return nil
	}
	if err := e.limiter.Reset(ctx, key, category); err != nil {
		return wrapCode(CodeServiceUnavailable, err)
	}
	return nil
}
