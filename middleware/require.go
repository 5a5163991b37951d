package middleware

import (
	"net/http"

	"github.com/MrEthical07/portalauth"
)

// RequirePermissions guards a route with the given permissions.
func RequirePermissions(engine *portalauth.Engine, permissions ...string) func(http.Handler) http.Handler {
	return Guard(engine, Requirement{Permissions: permissions})
}

// RequireScopes guards a route with the given scopes.
func RequireScopes(engine *portalauth.Engine, scopes ...string) func(http.Handler) http.Handler {
	return Guard(engine, Requirement{Scopes: scopes})
}
