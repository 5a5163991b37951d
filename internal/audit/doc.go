// Package audit relays security events to sinks off the request path.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, zap logger, no-op).
//   - [Dispatcher]: buffered relay that either drops or blocks when full.
//   - [Event]: one audit record with its user, session and request metadata.
//
// The Engine decides which events to emit; this package only buffers and
// delivers them. It must not import portalauth or sibling internal packages.
package audit
