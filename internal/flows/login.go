package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth/guard"
	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/session"
)

// ErrDirectoryTimeout is returned when an identity directory call outlives its
// deadline. The call is abandoned, not awaited.
var ErrDirectoryTimeout = errors.New("identity directory timed out")

// User is the directory's view of an account.
type User struct {
	ID                 string
	Username           string
	Email              string
	Name               string
	Role               string
	Permissions        []string
	Scopes             []string
	Inactive           bool
	MFAEnabled         bool
	MustChangePassword bool
}

// LoginContext describes where a login comes from.
type LoginContext struct {
	IP         string
	UserAgent  string
	DeviceID   string
	RememberMe bool
}

// ExternalIdentity is an identity already established by an external
// provider. ID is the directory user id the provider resolved to.
type ExternalIdentity struct {
	Provider string
	ID       string
	Email    string
	Name     string
}

// Issued is a freshly minted token pair and the session holding it.
type Issued struct {
	AccessToken  string
	RefreshToken string
	Access       *jwt.Claims
	Refresh      *jwt.Claims
	SessionID    string
	Evicted      []session.Session
}

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureIPBlocked
	LoginFailureRateLimited
	LoginFailureLocked
	LoginFailureUnavailable
	LoginFailureDirectoryTimeout
	LoginFailureInvalidCredentials
	LoginFailureInactive
	LoginFailureSuspicious
	LoginFailureMFARequired
	LoginFailurePasswordChange
	LoginFailureIssue
)

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	DirectoryRateLimited error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	DirectoryTimeout time.Duration

	AdmitIP             func(ip string) bool
	ConsumeRate         func(ctx context.Context, key string) (rate.Decision, error)
	ValidateCredentials func(ctx context.Context, identifier, secret, ip, userAgent string) (*User, error)
	LookupUser          func(ctx context.Context, id string) (*User, error)
	Permissions         func(ctx context.Context, userID string) ([]string, error)
	Issue               func(ctx context.Context, user *User, lc LoginContext, a guard.Assessment) (Issued, error)

	Guard  *guard.Guard
	Errors LoginErrors
}

// LoginResult carries either the issued tokens or failure metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	Subject    string
	User       *User
	RetryAt    time.Time
	UnlockAt   time.Time
	Lockout    guard.FailureOutcome
	Assessment guard.Assessment
	Issued     Issued
}

// NormalizeIdentifier folds an identifier to the key used for rate limiting
// and lockout.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// RunLogin executes the password login pipeline: admission, credential check,
// risk assessment and issuance.
func RunLogin(ctx context.Context, identifier, secret string, lc LoginContext, deps LoginDeps) LoginResult {
	subject := NormalizeIdentifier(identifier)
	res := LoginResult{Subject: subject}
	if subject == "" || secret == "" {
		res.Failure = LoginFailureInvalidCredentials
		return res
	}
	if !admit(ctx, subject, lc, deps, &res) {
		return res
	}

	user, err := CallDirectory(ctx, deps.DirectoryTimeout, func(ctx context.Context) (*User, error) {
		return deps.ValidateCredentials(ctx, identifier, secret, lc.IP, lc.UserAgent)
	})
	if err != nil {
		directoryFailure(err, deps, &res)
		return res
	}
	if user == nil {
		res.Lockout = deps.Guard.RecordFailure(subject, attemptFor(subject, lc))
		res.Failure = LoginFailureInvalidCredentials
		if res.Lockout.Locked {
			res.UnlockAt = res.Lockout.Until
		}
		return res
	}

	finishLogin(ctx, user, lc, deps, &res)
	return res
}

// RunIdentityLogin treats an externally established identity like a verified
// credential and continues with the same pipeline as [RunLogin].
func RunIdentityLogin(ctx context.Context, ext ExternalIdentity, lc LoginContext, deps LoginDeps) LoginResult {
	subject := NormalizeIdentifier(ext.Email)
	if subject == "" {
		subject = NormalizeIdentifier(ext.Provider + ":" + ext.ID)
	}
	res := LoginResult{Subject: subject}
	if ext.ID == "" {
		res.Failure = LoginFailureInvalidCredentials
		return res
	}
	if !admit(ctx, subject, lc, deps, &res) {
		return res
	}

	user, err := CallDirectory(ctx, deps.DirectoryTimeout, func(ctx context.Context) (*User, error) {
		return deps.LookupUser(ctx, ext.ID)
	})
	if err != nil {
		directoryFailure(err, deps, &res)
		return res
	}
	if user == nil {
		res.Failure = LoginFailureInvalidCredentials
		return res
	}
	if user.Name == "" {
		user.Name = ext.Name
	}

	finishLogin(ctx, user, lc, deps, &res)
	return res
}

func admit(ctx context.Context, subject string, lc LoginContext, deps LoginDeps, res *LoginResult) bool {
	if deps.AdmitIP != nil && !deps.AdmitIP(lc.IP) {
		res.Failure = LoginFailureIPBlocked
		return false
	}

	if deps.ConsumeRate != nil {
		decision, err := deps.ConsumeRate(ctx, subject)
		if err != nil {
			res.Failure = LoginFailureUnavailable
			res.Err = err
			return false
		}
		if !decision.Allowed {
			res.Failure = LoginFailureRateLimited
			res.Err = rate.ErrRateLimited
			res.RetryAt = decision.ResetTime
			return false
		}
	}

	if state := deps.Guard.IsLocked(subject); state.Locked {
		res.Failure = LoginFailureLocked
		res.UnlockAt = state.Until
		return false
	}
	return true
}

func directoryFailure(err error, deps LoginDeps, res *LoginResult) {
	res.Err = err
	switch {
	case errors.Is(err, ErrDirectoryTimeout):
		res.Failure = LoginFailureDirectoryTimeout
	case deps.Errors.DirectoryRateLimited != nil && errors.Is(err, deps.Errors.DirectoryRateLimited):
		res.Failure = LoginFailureRateLimited
	default:
		res.Failure = LoginFailureUnavailable
	}
}

func finishLogin(ctx context.Context, user *User, lc LoginContext, deps LoginDeps, res *LoginResult) {
	res.User = user
	if state := lockedAlias(deps.Guard, res.Subject, user); state.Locked {
		res.Failure = LoginFailureLocked
		res.UnlockAt = state.Until
		return
	}
	if user.Inactive {
		res.Failure = LoginFailureInactive
		return
	}

	attempt := attemptFor(res.Subject, lc)
	res.Assessment = deps.Guard.Assess(user.ID, attempt)
	if res.Assessment.Blocked {
		res.Failure = LoginFailureSuspicious
		return
	}
	// The credential was verified, so the attempt counts toward the success
	// history that risk scoring needs; failures stay until tokens are issued.
	if user.MFAEnabled {
		deps.Guard.RecordVerified(user.ID, attempt)
		res.Failure = LoginFailureMFARequired
		return
	}
	if user.MustChangePassword {
		deps.Guard.RecordVerified(user.ID, attempt)
		res.Failure = LoginFailurePasswordChange
		return
	}

	granted := *user
	if deps.Permissions != nil {
		extra, err := CallDirectory(ctx, deps.DirectoryTimeout, func(ctx context.Context) ([]string, error) {
			return deps.Permissions(ctx, user.ID)
		})
		if err != nil {
			directoryFailure(err, deps, res)
			return
		}
		granted.Permissions = append(append([]string(nil), user.Permissions...), extra...)
	}

	issued, err := deps.Issue(ctx, &granted, lc, res.Assessment)
	if err != nil {
		res.Failure = LoginFailureIssue
		res.Err = err
		return
	}
	res.Issued = issued
	res.User = &granted

	deps.Guard.RecordSuccess(user.ID, attempt)
	if res.Subject != user.ID {
		deps.Guard.ResetFailures(res.Subject)
	}
}

// lockedAlias checks every name the user can log in with, so a lock engaged
// under the username also holds for the email and the user id. The latest
// unlock time wins.
func lockedAlias(g *guard.Guard, subject string, user *User) guard.LockState {
	var out guard.LockState
	seen := make(map[string]struct{}, 4)
	for _, alias := range []string{subject, user.ID, NormalizeIdentifier(user.Username), NormalizeIdentifier(user.Email)} {
		if alias == "" {
			continue
		}
		if _, dup := seen[alias]; dup {
			continue
		}
		seen[alias] = struct{}{}
		if state := g.IsLocked(alias); state.Locked && state.Until.After(out.Until) {
			out = state
		}
	}
	return out
}

func attemptFor(subject string, lc LoginContext) guard.Attempt {
	info := internal.ParseUserAgent(lc.UserAgent)
	return guard.Attempt{
		Identifier:  subject,
		IP:          lc.IP,
		UserAgent:   lc.UserAgent,
		Fingerprint: lc.DeviceID,
		Device:      guard.DeviceInfo{Browser: info.Browser, OS: info.OS, Type: info.Type},
	}
}

// CallDirectory runs fn under a deadline of timeout. When the deadline passes
// first it returns [ErrDirectoryTimeout] and leaves fn to finish on its own.
func CallDirectory[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		value T
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		v, err := fn(ctx)
		done <- reply{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ErrDirectoryTimeout
	}
}
