package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/portalauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by a guard.
func AuthResultFromContext(ctx context.Context) (*portalauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*portalauth.AuthResult)
	return res, ok
}

// Requirement lists what a route needs from the access token.
type Requirement struct {
	Permissions []string
	Scopes      []string
}

// Guard rejects requests whose bearer token does not verify or lacks req.
func Guard(engine *portalauth.Engine, req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, string(portalauth.CodeServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			res := engine.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"), req.Permissions, req.Scopes)
			if !res.Success {
				if !res.RetryAt.IsZero() {
					w.Header().Set("Retry-After", RetryAfter(res.RetryAt, time.Now()))
				}
				if res.Code == portalauth.CodeNoToken || res.Code == portalauth.CodeTokenExpired {
					w.Header().Set("WWW-Authenticate", `Bearer realm="portal"`)
				}
				http.Error(w, string(res.Code), StatusFor(res.Code))
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, &res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps a result code to the HTTP status a guard answers with.
func StatusFor(code portalauth.Code) int {
	switch code {
	case portalauth.CodeOK:
		return http.StatusOK
	case portalauth.CodeInsufficientPerms, portalauth.CodeIPBlocked:
		return http.StatusForbidden
	case portalauth.CodeRateLimited:
		return http.StatusTooManyRequests
	case portalauth.CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case portalauth.CodeAccountLocked:
		return http.StatusLocked
	default:
		return http.StatusUnauthorized
	}
}

// RetryAfter formats the whole seconds from now until at, at least 1.
func RetryAfter(at, now time.Time) string {
	secs := int64(math.Ceil(at.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
