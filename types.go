package portalauth

import (
	"context"
	"time"

	"github.com/MrEthical07/portalauth/internal/flows"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
)

// User is an account as the [IdentityDirectory] reports it.
type User = flows.User

// LoginContext describes the client a login comes from. DeviceID overrides
// the fingerprint derived from UserAgent and IP.
type LoginContext = flows.LoginContext

// ExternalIdentity is the normalized result of an external provider's own
// sign-in flow.
type ExternalIdentity = flows.ExternalIdentity

// IdentityDirectory is the account store the Engine checks credentials
// against. A nil user with a nil error means no such account. Errors
// wrapping [ErrDirectoryRateLimited] are surfaced as [CodeRateLimited].
//
// Every call runs under the configured directory timeout; implementations
// should honor ctx cancellation.
type IdentityDirectory interface {
	ValidateCredentials(ctx context.Context, identifier, secret, ip, userAgent string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetPermissions(ctx context.Context, id string) ([]string, error)
}

// UserSummary is the sanitized user view returned by a login.
type UserSummary struct {
	ID          string   `json:"id"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

func summarize(u *User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Permissions: append([]string(nil), u.Permissions...),
	}
}

// Result is embedded in every operation result. Err wraps the sentinel of
// Code so errors.Is works on it.
type Result struct {
	Success bool
	Code    Code
	Err     error
}

func ok() Result {
	return Result{Success: true}
}

func fail(code Code, cause error) Result {
	return Result{Code: code, Err: wrapCode(code, cause)}
}

// LoginResult is returned by [Engine.Login] and [Engine.LoginWithIdentity].
// RetryAt is set for rate-limited attempts and UnlockAt while the account is
// locked.
type LoginResult struct {
	Result

	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        string
	SessionID    string
	User         *UserSummary
	RiskScore    int

	RetryAt  time.Time
	UnlockAt time.Time
}

// RefreshResult is returned by [Engine.Refresh]. Without rotation
// RefreshToken is the presented token.
type RefreshResult struct {
	Result

	AccessToken   string
	RefreshToken  string
	TokenType     string
	ExpiresIn     int64
	RotationCount int
}

// LogoutOptions selects between ending one session and ending all of them.
type LogoutOptions struct {
	RevokeAll bool
}

// AuthResult is returned by [Engine.AuthenticateRequest]. Missing lists the
// required permissions and scopes the token lacks; RetryAt is set when the
// api rate limit rejected the request.
type AuthResult struct {
	Result

	UserID    string
	SessionID string
	Claims    *jwt.Claims
	Missing   []string
	RetryAt   time.Time
}

// AccessClaims is the input of [Engine.IssueAccess].
type AccessClaims struct {
	UserID      string
	Username    string
	Email       string
	Role        string
	Permissions []string
	Scopes      []string
	DeviceID    string
	SessionID   string
}

// Reason explains an invalid [Verification].
type Reason = flows.Reason

const (
	ReasonExpired     = flows.ReasonExpired
	ReasonBlacklisted = flows.ReasonBlacklisted
	ReasonWrongType   = flows.ReasonWrongType
	ReasonMalformed   = flows.ReasonMalformed
)

// Verification is the outcome of [Engine.Verify]. Err is only set when the
// session ledger could not be consulted.
type Verification struct {
	Valid  bool
	Reason Reason
	Claims *jwt.Claims
	Err    error
}

// Code maps the verification outcome to a result code.
func (v Verification) Code() Code {
	switch {
	case v.Valid:
		return CodeOK
	case v.Err != nil:
		return CodeServiceUnavailable
	}
	switch v.Reason {
	case ReasonExpired:
		return CodeTokenExpired
	case ReasonBlacklisted:
		return CodeTokenBlacklisted
	case ReasonWrongType:
		return CodeTokenWrongType
	default:
		return CodeTokenMalformed
	}
}

// RateCategory selects an independent family of admission buckets.
type RateCategory = rate.Category

const (
	RateLogin  = rate.CategoryLogin
	RateAPI    = rate.CategoryAPI
	RateGlobal = rate.CategoryGlobal
)

// RateDecision is the outcome of [Engine.ConsumeRate].
type RateDecision = rate.Decision
