package portalauth

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/guard"
	"github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/internal/metrics"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/internal/sweeper"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/permission"
	"github.com/MrEthical07/portalauth/session"
)

// Engine is the credential issuer. It is built once by [Builder.Build],
// started with [Engine.Start], and safe for concurrent use until
// [Engine.Close].
type Engine struct {
	config    Config
	directory IdentityDirectory
	logger    *zap.Logger
	clock     func() time.Time

	jwt    *jwt.Manager
	ledger *session.Ledger
	guard  *guard.Guard
	hasher password.Hasher
	policy password.Policy
	roles  *permission.Roles

	limiter    rate.Limiter
	memLimiter *rate.MemoryLimiter
	allow      []netip.Prefix
	deny       []netip.Prefix

	observers []Observer
	audit     *audit.Dispatcher
	metrics   *metrics.Metrics

	ownedRedis redis.UniversalClient
	flows      flows.Deps

	mu      sync.Mutex
	loops   []*sweeper.Loop
	started bool
}

// Start connects the session ledger, restoring persisted state when Redis is
// configured, and starts the background sweeps. Starting twice is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	if err := e.ledger.Connect(ctx); err != nil {
		return wrapCode(CodeServiceUnavailable, err)
	}

	if iv := e.config.Security.SweepInterval; iv > 0 {
		e.loops = append(e.loops, sweeper.Start(iv, func(time.Time) {
			if n := e.guard.Sweep(e.now()); n > 0 {
				e.logger.Debug("security history pruned", zap.Int("entries", n))
			}
		}))
	}
	if e.memLimiter != nil && e.config.RateLimit.SweepInterval > 0 {
		e.loops = append(e.loops, sweeper.Start(e.config.RateLimit.SweepInterval, func(time.Time) {
			e.memLimiter.Sweep(e.now())
		}))
	}

	e.started = true
	e.logger.Info("engine started")
	return nil
}

// Close stops the sweeps, disconnects the ledger, drains the audit
// dispatcher and closes a Redis client the Engine created itself.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	loops := e.loops
	e.loops = nil
	started := e.started
	e.started = false
	e.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}

	var errs []error
	if started {
		errs = append(errs, e.ledger.Disconnect(context.Background()))
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownedRedis != nil {
		errs = append(errs, e.ownedRedis.Close())
	}
	return errors.Join(errs...)
}

// AuditDropped returns how many audit events the dispatcher dropped because
// its buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ledger exposes the session ledger, mainly for tests and admin tooling.
func (e *Engine) Ledger() *session.Ledger {
	return e.ledger
}

func (e *Engine) now() time.Time {
	return e.clock()
}

func (e *Engine) buildFlows() flows.Deps {
	verify := flows.VerifyDeps{
		Decode:      e.jwt.Decode,
		Expired:     e.jwt.Expired,
		Parse:       e.jwt.Parse,
		Blacklisted: e.ledger.IsBlacklisted,
	}
	verifyKind := func(kind jwt.Kind) func(string) flows.VerifyResult {
		return func(token string) flows.VerifyResult {
			return flows.RunVerify(token, kind, verify)
		}
	}

	return flows.Deps{
		Verify: verify,
		Login: flows.LoginDeps{
			DirectoryTimeout:    e.config.Directory.Timeout,
			AdmitIP:             e.admitIP,
			ConsumeRate:         e.consumeLoginRate,
			ValidateCredentials: e.directory.ValidateCredentials,
			LookupUser:          e.directory.GetUser,
			Permissions:         e.directory.GetPermissions,
			Issue:               e.issueLogin,
			Guard:               e.guard,
			Errors: flows.LoginErrors{
				DirectoryRateLimited: ErrDirectoryRateLimited,
			},
		},
		Refresh: flows.RefreshDeps{
			RotationEnabled:  e.config.Refresh.Rotation,
			ReuseDetection:   e.config.Refresh.ReuseDetection,
			RotationCeiling:  e.config.Refresh.RotationCeiling,
			DirectoryTimeout: e.config.Directory.Timeout,
			FamilyRetention:  e.config.Refresh.FamilyRetention,
			Now:              e.now,
			Verify:           verifyKind(jwt.KindRefresh),
			Inspect:          e.jwt.Inspect,
			BlacklistReason:  e.blacklistReason,
			Chain:            e.ledger.Chain,
			ConsumeChain:     e.ledger.ConsumeChain,
			RevokeFamily:     e.ledger.RevokeFamily,
			LookupUser:       e.directory.GetUser,
			Permissions:      e.directory.GetPermissions,
			IssueAccess:      e.issueAccessForChain,
			IssueRefresh:     e.issueRefresh,
		},
		Logout: flows.LogoutDeps{
			Verify:              verifyKind(jwt.KindAccess),
			RemoveSession:       e.ledger.RemoveSession,
			RemoveAllForUser:    e.ledger.RemoveAllForUser,
			RemoveChainsForUser: e.ledger.RemoveChainsForUser,
			Blacklist:           e.ledger.Blacklist,
		},
	}
}

func (e *Engine) blacklistReason(tokenID string) (string, bool, error) {
	entry, ok, err := e.ledger.BlacklistEntry(tokenID)
	if err != nil || !ok {
		return "", ok, err
	}
	return entry.Reason, true, nil
}
