package portalauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// ClientIPFromContext returns the IP set by [WithClientIP].
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// UserAgentFromContext returns the user agent set by [WithUserAgent].
func UserAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// LoginContextFrom builds a [LoginContext] from the values attached to ctx.
func LoginContextFrom(ctx context.Context) LoginContext {
	return LoginContext{
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
	}
}
