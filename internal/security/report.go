package security

import "time"

type Report struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	PasswordHasher         string
	RefreshRotationEnabled bool
	ReuseDetectionEnabled  bool
	RotationCeiling        int
	SessionCapActive       bool
	IdleTimeout            time.Duration
	LockoutThreshold       int
	LockoutDuration        time.Duration
	RateLimitingActive     bool
	RiskScoringActive      bool
	IPFilteringActive      bool
	PersistentLedger       bool
	AuditActive            bool
	Warnings               []string
}

type ReportInput struct {
	SigningAlgorithm   string
	SecretLength       int
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	PasswordHasher     string
	RotationEnabled    bool
	ReuseDetection     bool
	RotationCeiling    int
	MaxSessionsPerUser int
	IdleTimeout        time.Duration
	LockoutAttempts    int
	LockoutDuration    time.Duration
	RateLimitEnabled   bool
	RiskEnabled        bool
	AllowListSize      int
	DenyListSize       int
	RedisBacked        bool
	AuditEnabled       bool
}

// Warning texts. They are stable so dashboards can match on them.
const (
	WarnShortSecret       = "hs256 secret shorter than 32 bytes"
	WarnNoRotation        = "refresh rotation disabled"
	WarnNoReuseDetection  = "refresh reuse detection disabled"
	WarnNoRotationCeiling = "refresh rotation ceiling disabled"
	WarnNoRateLimit       = "rate limiting disabled"
	WarnNoSessionCap      = "no per-user session cap"
	WarnLongAccessTTL     = "access tokens live longer than one hour"
	WarnVolatileLedger    = "sessions are not persisted across restarts"
)

func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		PasswordHasher:         input.PasswordHasher,
		RefreshRotationEnabled: input.RotationEnabled,
		ReuseDetectionEnabled:  input.RotationEnabled && input.ReuseDetection,
		RotationCeiling:        input.RotationCeiling,
		SessionCapActive:       input.MaxSessionsPerUser > 0,
		IdleTimeout:            input.IdleTimeout,
		LockoutThreshold:       input.LockoutAttempts,
		LockoutDuration:        input.LockoutDuration,
		RateLimitingActive:     input.RateLimitEnabled,
		RiskScoringActive:      input.RiskEnabled,
		IPFilteringActive:      input.AllowListSize > 0 || input.DenyListSize > 0,
		PersistentLedger:       input.RedisBacked,
		AuditActive:            input.AuditEnabled,
	}

	if input.SigningAlgorithm == "HS256" && input.SecretLength < 32 {
		r.Warnings = append(r.Warnings, WarnShortSecret)
	}
	if !input.RotationEnabled {
		r.Warnings = append(r.Warnings, WarnNoRotation)
	} else if !input.ReuseDetection {
		r.Warnings = append(r.Warnings, WarnNoReuseDetection)
	}
	if input.RotationEnabled && input.RotationCeiling == 0 {
		r.Warnings = append(r.Warnings, WarnNoRotationCeiling)
	}
	if !input.RateLimitEnabled {
		r.Warnings = append(r.Warnings, WarnNoRateLimit)
	}
	if input.MaxSessionsPerUser == 0 {
		r.Warnings = append(r.Warnings, WarnNoSessionCap)
	}
	if input.AccessTTL > time.Hour {
		r.Warnings = append(r.Warnings, WarnLongAccessTTL)
	}
	if !input.RedisBacked {
		r.Warnings = append(r.Warnings, WarnVolatileLedger)
	}
	return r
}
