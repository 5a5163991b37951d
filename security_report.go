package portalauth

import (
	"github.com/MrEthical07/portalauth/internal/security"
)

// SecurityReport summarizes which defenses the engine runs with. Warnings
// lists settings that weaken them.
type SecurityReport = security.Report

// SecurityReport derives the report from the engine configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:   e.jwt.Algorithm(),
		SecretLength:       len(cfg.JWT.Secret),
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         cfg.JWT.RefreshTTL,
		PasswordHasher:     cfg.Password.Hasher,
		RotationEnabled:    cfg.Refresh.Rotation,
		ReuseDetection:     cfg.Refresh.ReuseDetection,
		RotationCeiling:    cfg.Refresh.RotationCeiling,
		MaxSessionsPerUser: cfg.Session.MaxSessionsPerUser,
		IdleTimeout:        cfg.Session.IdleTimeout,
		LockoutAttempts:    cfg.Lockout.MaxAttempts,
		LockoutDuration:    cfg.Lockout.Duration,
		RateLimitEnabled:   cfg.RateLimit.Enabled,
		RiskEnabled:        cfg.Risk.Enabled,
		AllowListSize:      len(e.allow),
		DenyListSize:       len(e.deny),
		RedisBacked:        e.ledger.Persistent(),
		AuditEnabled:       e.audit != nil,
	})
}
