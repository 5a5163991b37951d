package portalauth

import (
	"github.com/MrEthical07/portalauth/internal/metrics"
)

// MetricID identifies one engine counter.
type MetricID = metrics.MetricID

const (
	MetricLoginSuccess          = metrics.MetricLoginSuccess
	MetricLoginFailure          = metrics.MetricLoginFailure
	MetricLoginRateLimited      = metrics.MetricLoginRateLimited
	MetricLoginLocked           = metrics.MetricLoginLocked
	MetricLoginSuspicious       = metrics.MetricLoginSuspicious
	MetricLoginMFARequired      = metrics.MetricLoginMFARequired
	MetricLoginIPBlocked        = metrics.MetricLoginIPBlocked
	MetricLockoutEngaged        = metrics.MetricLockoutEngaged
	MetricDirectoryUnavailable  = metrics.MetricDirectoryUnavailable
	MetricRefreshSuccess        = metrics.MetricRefreshSuccess
	MetricRefreshFailure        = metrics.MetricRefreshFailure
	MetricRefreshReuseDetected  = metrics.MetricRefreshReuseDetected
	MetricRotationLimitExceeded = metrics.MetricRotationLimitExceeded
	MetricFamilyRevoked         = metrics.MetricFamilyRevoked
	MetricVerifySuccess         = metrics.MetricVerifySuccess
	MetricVerifyFailure         = metrics.MetricVerifyFailure
	MetricTokenBlacklisted      = metrics.MetricTokenBlacklisted
	MetricSessionCreated        = metrics.MetricSessionCreated
	MetricSessionEvicted        = metrics.MetricSessionEvicted
	MetricSessionExpired        = metrics.MetricSessionExpired
	MetricLogout                = metrics.MetricLogout
	MetricLogoutAll             = metrics.MetricLogoutAll
	MetricRateLimitHit          = metrics.MetricRateLimitHit
	MetricPermissionDenied      = metrics.MetricPermissionDenied
	MetricVerifyLatency         = metrics.MetricVerifyLatency
)

// MetricsSnapshot is a point-in-time copy of the engine counters and the
// verify latency histogram.
type MetricsSnapshot = metrics.Snapshot

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
