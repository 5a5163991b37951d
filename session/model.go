package session

import "time"

// DeviceInfo is the coarse user-agent classification stored with a session.
type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Type    string `json:"type"`
}

// Session is one authenticated presence of a user on one device.
type Session struct {
	UserID       string     `json:"user_id"`
	SessionID    string     `json:"session_id"`
	DeviceID     string     `json:"device_id"`
	Device       DeviceInfo `json:"device"`
	IP           string     `json:"ip,omitempty"`
	Location     string     `json:"location,omitempty"`
	LoginTime    time.Time  `json:"login_time"`
	LastActivity time.Time  `json:"last_activity"`
	Active       bool       `json:"active"`
	RememberMe   bool       `json:"remember_me"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// TokenRecord is the ledger's view of an issued token. Kind is "access" or
// "refresh".
type TokenRecord struct {
	TokenID   string    `json:"jti"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Chain is the live link of a refresh-token family: the current refresh jti
// and how many rotations produced it.
type Chain struct {
	FamilyID      string    `json:"family_id"`
	TokenID       string    `json:"jti"`
	RotationCount int       `json:"rotation_count"`
	UserID        string    `json:"user_id"`
	SessionID     string    `json:"session_id"`
	DeviceID      string    `json:"device_id"`
	ExpiresAt     time.Time `json:"exp"`
}

// BlacklistEntry marks a token id as revoked until Deadline.
type BlacklistEntry struct {
	TokenID  string    `json:"jti"`
	Deadline time.Time `json:"deadline"`
	Reason   string    `json:"reason"`
}

// Stats is a point-in-time summary of the sessions held by a ledger.
type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	Expired      int            `json:"expired"`
	ByDeviceType map[string]int `json:"by_device_type"`
	ByLocation   map[string]int `json:"by_location"`
}

// SweepReport counts what one Sweep removed.
type SweepReport struct {
	Tokens    int
	Sessions  int
	Idle      int
	Chains    int
	Blacklist int
	Families  int
}

// Removal reasons passed to hooks and stored on blacklist entries.
const (
	ReasonEvicted       = "session_evicted"
	ReasonIdle          = "idle_timeout"
	ReasonExpired       = "session_expired"
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonRotated       = "rotated"
	ReasonFamily        = "family_revoked"
	ReasonRotationLimit = "rotation_limit"
	ReasonReuse         = "refresh_reuse"
	ReasonRevoked       = "revoked"
	ReasonExplicit      = "blacklisted"
)
