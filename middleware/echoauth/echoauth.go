// Package echoauth guards echo routes with a portalauth Engine.
package echoauth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/middleware"
)

const (
	AuthResultKey = "_portalauth_result"
	UserIDKey     = "_portalauth_user_id"
)

// RequireAuth authenticates the bearer token of every request and checks
// req. Failures become *echo.HTTPError with the result code as message.
func RequireAuth(engine *portalauth.Engine, req middleware.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if engine == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, string(portalauth.CodeServiceUnavailable))
			}

			r := c.Request()
			res := engine.AuthenticateRequest(r.Context(), r.Header.Get(echo.HeaderAuthorization), req.Permissions, req.Scopes)
			if !res.Success {
				if !res.RetryAt.IsZero() {
					c.Response().Header().Set(echo.HeaderRetryAfter, middleware.RetryAfter(res.RetryAt, time.Now()))
				}
				return echo.NewHTTPError(middleware.StatusFor(res.Code), string(res.Code)).SetInternal(res.Err)
			}

			c.Set(AuthResultKey, &res)
			c.Set(UserIDKey, res.UserID)
			return next(c)
		}
	}
}

// RequirePermissions is RequireAuth with permissions only.
func RequirePermissions(engine *portalauth.Engine, permissions ...string) echo.MiddlewareFunc {
	return RequireAuth(engine, middleware.Requirement{Permissions: permissions})
}

func GetUserID(c echo.Context) string {
	if id, ok := c.Get(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func GetAuthResult(c echo.Context) *portalauth.AuthResult {
	if res, ok := c.Get(AuthResultKey).(*portalauth.AuthResult); ok {
		return res
	}
	return nil
}
