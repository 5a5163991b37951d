package security

import (
	"slices"
	"testing"
	"time"
)

func hardenedInput() ReportInput {
	return ReportInput{
		SigningAlgorithm:   "HS256",
		SecretLength:       32,
		AccessTTL:          15 * time.Minute,
		RefreshTTL:         7 * 24 * time.Hour,
		PasswordHasher:     "argon2id",
		RotationEnabled:    true,
		ReuseDetection:     true,
		RotationCeiling:    10,
		MaxSessionsPerUser: 5,
		LockoutAttempts:    5,
		LockoutDuration:    15 * time.Minute,
		RateLimitEnabled:   true,
		RiskEnabled:        true,
		DenyListSize:       1,
		RedisBacked:        true,
	}
}

func TestBuildReportHardened(t *testing.T) {
	r := BuildReport(hardenedInput())
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
	if !r.ReuseDetectionEnabled || !r.SessionCapActive || !r.IPFilteringActive || !r.PersistentLedger {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestBuildReportWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReportInput)
		want   string
	}{
		{"short secret", func(in *ReportInput) { in.SecretLength = 16 }, WarnShortSecret},
		{"no rotation", func(in *ReportInput) { in.RotationEnabled = false }, WarnNoRotation},
		{"no reuse detection", func(in *ReportInput) { in.ReuseDetection = false }, WarnNoReuseDetection},
		{"no ceiling", func(in *ReportInput) { in.RotationCeiling = 0 }, WarnNoRotationCeiling},
		{"no rate limit", func(in *ReportInput) { in.RateLimitEnabled = false }, WarnNoRateLimit},
		{"no session cap", func(in *ReportInput) { in.MaxSessionsPerUser = 0 }, WarnNoSessionCap},
		{"long access ttl", func(in *ReportInput) { in.AccessTTL = 2 * time.Hour }, WarnLongAccessTTL},
		{"memory ledger", func(in *ReportInput) { in.RedisBacked = false }, WarnVolatileLedger},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := hardenedInput()
			tc.mutate(&in)
			r := BuildReport(in)
			if !slices.Contains(r.Warnings, tc.want) {
				t.Fatalf("expected warning %q, got %v", tc.want, r.Warnings)
			}
		})
	}
}

func TestReuseDetectionNeedsRotation(t *testing.T) {
	in := hardenedInput()
	in.RotationEnabled = false

	r := BuildReport(in)
	if r.ReuseDetectionEnabled {
		t.Fatal("reuse detection cannot be active without rotation")
	}
	if slices.Contains(r.Warnings, WarnNoReuseDetection) {
		t.Fatalf("rotation warning covers reuse detection, got %v", r.Warnings)
	}
}
