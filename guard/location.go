package guard

import "net/netip"

// UnknownLocation is reported when an IP cannot be resolved.
const UnknownLocation = "unknown"

// LocationResolver maps an IP address to a coarse location key.
type LocationResolver interface {
	Resolve(ip string) string
}

// LocationResolverFunc adapts a function to [LocationResolver].
type LocationResolverFunc func(ip string) string

func (f LocationResolverFunc) Resolve(ip string) string { return f(ip) }

// NetworkResolver keys locations by network prefix: /24 for IPv4 and /48 for
// IPv6.
type NetworkResolver struct{}

func (NetworkResolver) Resolve(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return UnknownLocation
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return UnknownLocation
	}
	return prefix.String()
}
