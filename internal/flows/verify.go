package flows

import (
	"errors"

	"github.com/MrEthical07/portalauth/jwt"
)

// Reason classifies why a token failed verification.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonExpired     Reason = "EXPIRED"
	ReasonBlacklisted Reason = "BLACKLISTED"
	ReasonWrongType   Reason = "WRONG_TYPE"
	ReasonMalformed   Reason = "MALFORMED"
)

// VerifyResult carries the verified claims or the failure reason. Claims are
// set on failure too when the token could at least be decoded; they are
// unverified in that case and must not be trusted.
type VerifyResult struct {
	Reason Reason
	Err    error
	Claims *jwt.Claims
}

// Valid reports whether verification succeeded.
func (r VerifyResult) Valid() bool {
	return r.Reason == ReasonNone && r.Err == nil && r.Claims != nil
}

// VerifyDeps captures verification dependencies.
type VerifyDeps struct {
	Decode      func(string) (*jwt.Claims, error)
	Expired     func(*jwt.Claims) bool
	Parse       func(string) (*jwt.Claims, error)
	Blacklisted func(tokenID string) (bool, error)
}

// RunVerify checks tokenStr in cost order: decode, blacklist, expiry,
// signature and issuer/audience, then kind. A blacklisted token is reported
// as blacklisted even when it has also expired. Err is only set when the
// blacklist could not be consulted.
func RunVerify(tokenStr string, kind jwt.Kind, deps VerifyDeps) VerifyResult {
	decoded, err := deps.Decode(tokenStr)
	if err != nil {
		return VerifyResult{Reason: ReasonMalformed}
	}

	blacklisted, err := deps.Blacklisted(decoded.ID)
	if err != nil {
		return VerifyResult{Err: err, Claims: decoded}
	}
	if blacklisted {
		return VerifyResult{Reason: ReasonBlacklisted, Claims: decoded}
	}

	if deps.Expired(decoded) {
		return VerifyResult{Reason: ReasonExpired, Claims: decoded}
	}

	claims, err := deps.Parse(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return VerifyResult{Reason: ReasonExpired, Claims: decoded}
		}
		return VerifyResult{Reason: ReasonMalformed}
	}

	if claims.Kind != kind {
		return VerifyResult{Reason: ReasonWrongType, Claims: claims}
	}
	return VerifyResult{Claims: claims}
}
