package portalauth

import (
	"errors"
	"fmt"
)

// Code is the machine-readable outcome carried by every result.
type Code string

const (
	CodeOK                     Code = ""
	CodeInvalidCredentials     Code = "INVALID_CREDENTIALS"
	CodeAccountLocked          Code = "ACCOUNT_LOCKED"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeInsufficientPerms      Code = "INSUFFICIENT_PERMISSIONS"
	CodeTokenExpired           Code = "TOKEN_EXPIRED"
	CodeTokenBlacklisted       Code = "TOKEN_BLACKLISTED"
	CodeTokenWrongType         Code = "TOKEN_WRONG_TYPE"
	CodeTokenMalformed         Code = "TOKEN_MALFORMED"
	CodeRefreshTokenNotFound   Code = "REFRESH_TOKEN_NOT_FOUND"
	CodeRotationLimitExceeded  Code = "ROTATION_LIMIT_EXCEEDED"
	CodeUserInactive           Code = "USER_INACTIVE"
	CodeServiceUnavailable     Code = "SERVICE_UNAVAILABLE"
	CodeMFARequired            Code = "MFA_REQUIRED"
	CodePasswordChangeRequired Code = "PASSWORD_CHANGE_REQUIRED"
	CodeNoToken                Code = "NO_TOKEN"
	CodeIPBlocked              Code = "IP_BLOCKED"
	CodeSuspiciousActivity     Code = "SUSPICIOUS_ACTIVITY"
	CodeSessionNotFound        Code = "SESSION_NOT_FOUND"
)

var (
	// ErrInvalidCredentials is used for both an unknown identifier and a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout is in force.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is returned when an admission bucket is empty.
	ErrRateLimited = errors.New("rate limited")
	// ErrInsufficientPermissions is returned when a required permission or scope is missing.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrTokenExpired            = errors.New("token expired")
	ErrTokenBlacklisted        = errors.New("token blacklisted")
	ErrTokenWrongType          = errors.New("token has the wrong type")
	ErrTokenMalformed          = errors.New("token malformed")
	// ErrRefreshTokenNotFound is returned when a refresh token has no live
	// chain, including the loser of a concurrent rotation.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrRotationLimitExceeded is returned once a family has rotated past the
	// configured ceiling; the whole family is revoked.
	ErrRotationLimitExceeded = errors.New("refresh rotation limit exceeded")
	ErrUserInactive          = errors.New("user inactive")
	// ErrServiceUnavailable covers an unreachable identity directory or
	// session ledger.
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrMFARequired            = errors.New("mfa required")
	ErrPasswordChangeRequired = errors.New("password change required")
	ErrNoToken                = errors.New("no bearer token")
	ErrIPBlocked              = errors.New("ip address blocked")
	ErrSuspiciousActivity     = errors.New("suspicious activity")
	ErrSessionNotFound        = errors.New("session not found")
	ErrRefreshReuse           = errors.New("refresh token reuse detected")
	ErrEngineNotReady         = errors.New("engine not initialized")
	// ErrDirectoryRateLimited is wrapped by an identity directory that wants
	// the caller to back off. Login surfaces such errors as RATE_LIMITED.
	ErrDirectoryRateLimited = errors.New("identity directory rate limited")
)

var codeErrors = []struct {
	code Code
	err  error
}{
	{CodeInvalidCredentials, ErrInvalidCredentials},
	{CodeAccountLocked, ErrAccountLocked},
	{CodeRateLimited, ErrRateLimited},
	{CodeInsufficientPerms, ErrInsufficientPermissions},
	{CodeTokenExpired, ErrTokenExpired},
	{CodeTokenBlacklisted, ErrTokenBlacklisted},
	{CodeTokenWrongType, ErrTokenWrongType},
	{CodeTokenMalformed, ErrTokenMalformed},
	{CodeRefreshTokenNotFound, ErrRefreshTokenNotFound},
	{CodeRotationLimitExceeded, ErrRotationLimitExceeded},
	{CodeUserInactive, ErrUserInactive},
	{CodeServiceUnavailable, ErrServiceUnavailable},
	{CodeMFARequired, ErrMFARequired},
	{CodePasswordChangeRequired, ErrPasswordChangeRequired},
	{CodeNoToken, ErrNoToken},
	{CodeIPBlocked, ErrIPBlocked},
	{CodeSuspiciousActivity, ErrSuspiciousActivity},
	{CodeSessionNotFound, ErrSessionNotFound},
}

// Err returns the sentinel error of c, or nil for [CodeOK].
func (c Code) Err() error {
	for _, ce := range codeErrors {
		if ce.code == c {
			return ce.err
		}
	}
	return nil
}

// CodeOf returns the code whose sentinel err wraps, or
// [CodeServiceUnavailable] for an unclassified non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	switch {
	case errors.Is(err, ErrDirectoryRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return CodeTokenBlacklisted
	}
	return CodeServiceUnavailable
}

// wrapCode returns an error that matches both the sentinel of code and cause.
func wrapCode(code Code, cause error) error {
	sentinel := code.Err()
	switch {
	case sentinel == nil:
		return cause
	case cause == nil:
		return sentinel
	case errors.Is(cause, sentinel):
		return cause
	default:
		return fmt.Errorf("%w: %w", sentinel, cause)
	}
}

// ConfigError reports an invalid or missing construction parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("portalauth: invalid config %s: %s", e.Field, e.Reason)
}

func configError(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
