// Package middleware adapts [portalauth.Engine.AuthenticateRequest] to
// net/http handlers.
//
// # Guards
//
//   - [Guard] authenticates the bearer token and checks a [Requirement].
//   - [RequirePermissions] and [RequireScopes] are shorthands for Guard.
//
// Each guard reads the Authorization header, calls AuthenticateRequest and
// stores the [portalauth.AuthResult] in the request context, where
// [AuthResultFromContext] finds it.
//
// Failures are answered with the status of [StatusFor] and the result code as
// the body. Rate-limited requests also get a Retry-After header.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or talk to Redis; every decision is the Engine's. The echoauth
// subpackage offers the same guard for echo.
package middleware
