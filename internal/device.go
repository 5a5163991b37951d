package internal

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/mileusna/useragent"
)

// UnknownDevice is the fingerprint used when neither user agent nor IP is known.
const UnknownDevice = "unknown"

// DeviceFingerprint returns the first 16 hex characters of
// sha256("<userAgent>:<ip>").
func DeviceFingerprint(userAgent, ip string) string {
	if userAgent == "" && ip == "" {
		return UnknownDevice
	}
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])[:16]
}

// DeviceInfo is the coarse classification of a user agent.
type DeviceInfo struct {
	Browser string
	OS      string
	Type    string
}

// ParseUserAgent classifies ua into browser, OS and device type
// (desktop, mobile, tablet, bot or unknown).
func ParseUserAgent(ua string) DeviceInfo {
	if ua == "" {
		return DeviceInfo{Browser: "unknown", OS: "unknown", Type: "unknown"}
	}
	parsed := useragent.Parse(ua)

	info := DeviceInfo{Browser: parsed.Name, OS: parsed.OS, Type: "unknown"}
	switch {
	case parsed.Bot:
		info.Type = "bot"
	case parsed.Tablet:
		info.Type = "tablet"
	case parsed.Mobile:
		info.Type = "mobile"
	case parsed.Desktop:
		info.Type = "desktop"
	}
	if info.Browser == "" {
		info.Browser = "unknown"
	}
	if info.OS == "" {
		info.OS = "unknown"
	}
	return info
}

// TokenDigest returns a short stable digest of a token or token id for logs.
func TokenDigest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:4])
}
