package internaldefs

import (
	"github.com/MrEthical07/portalauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: portalauth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Successful logins."},
	{ID: portalauth.MetricLoginFailure, Name: "portalauth_login_failure_total", Help: "Logins rejected for any reason."},
	{ID: portalauth.MetricLoginRateLimited, Name: "portalauth_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: portalauth.MetricLoginLocked, Name: "portalauth_login_locked_total", Help: "Logins rejected while the identifier was locked out."},
	{ID: portalauth.MetricLoginSuspicious, Name: "portalauth_login_suspicious_total", Help: "Logins blocked by the risk assessment."},
	{ID: portalauth.MetricLoginMFARequired, Name: "portalauth_login_mfa_required_total", Help: "Logins that stopped at the MFA gate."},
	{ID: portalauth.MetricLoginIPBlocked, Name: "portalauth_login_ip_blocked_total", Help: "Logins rejected by the IP allow or deny list."},
	{ID: portalauth.MetricLockoutEngaged, Name: "portalauth_lockout_engaged_total", Help: "Lockouts engaged after repeated failures."},
	{ID: portalauth.MetricDirectoryUnavailable, Name: "portalauth_directory_unavailable_total", Help: "User directory calls that failed or timed out."},
	{ID: portalauth.MetricRefreshSuccess, Name: "portalauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: portalauth.MetricRefreshFailure, Name: "portalauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: portalauth.MetricRefreshReuseDetected, Name: "portalauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: portalauth.MetricRotationLimitExceeded, Name: "portalauth_rotation_limit_exceeded_total", Help: "Token families that hit the rotation ceiling."},
	{ID: portalauth.MetricFamilyRevoked, Name: "portalauth_family_revoked_total", Help: "Token families revoked."},
	{ID: portalauth.MetricVerifySuccess, Name: "portalauth_verify_success_total", Help: "Tokens that verified."},
	{ID: portalauth.MetricVerifyFailure, Name: "portalauth_verify_failure_total", Help: "Tokens that failed verification."},
	{ID: portalauth.MetricTokenBlacklisted, Name: "portalauth_token_blacklisted_total", Help: "Tokens added to the blacklist."},
	{ID: portalauth.MetricSessionCreated, Name: "portalauth_session_created_total", Help: "Sessions created."},
	{ID: portalauth.MetricSessionEvicted, Name: "portalauth_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: portalauth.MetricSessionExpired, Name: "portalauth_session_expired_total", Help: "Sessions removed by idle or absolute expiry."},
	{ID: portalauth.MetricLogout, Name: "portalauth_logout_total", Help: "Single-session logouts."},
	{ID: portalauth.MetricLogoutAll, Name: "portalauth_logout_all_total", Help: "Logout-all operations."},
	{ID: portalauth.MetricRateLimitHit, Name: "portalauth_rate_limit_hit_total", Help: "Rate-limit checks that denied a request."},
	{ID: portalauth.MetricPermissionDenied, Name: "portalauth_permission_denied_total", Help: "Requests missing a required permission or scope."},
}

var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricVerifyLatency, Name: "portalauth_verify_latency_seconds", Help: "Token verification latency."},
}

// HistogramBounds are the upper bounds of the verify latency buckets in
// seconds, matching the engine's millisecond buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets and ignoring extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
