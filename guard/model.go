package guard

import "time"

// DeviceInfo is the coarse classification of a device's user agent.
type DeviceInfo struct {
	Browser string
	OS      string
	Type    string
}

// Device is a device fingerprint seen for a user.
type Device struct {
	Fingerprint string
	Info        DeviceInfo
	FirstSeen   time.Time
	LastSeen    time.Time
	Trusted     bool
}

// PasswordEntry is one retained password hash.
type PasswordEntry struct {
	Hash      string
	CreatedAt time.Time
}

// SecurityLevel is a coarse label derived from the latest risk score.
type SecurityLevel string

const (
	LevelLow    SecurityLevel = "low"
	LevelMedium SecurityLevel = "medium"
	LevelHigh   SecurityLevel = "high"
)

// Profile is the adaptive-security state of one subject.
type Profile struct {
	Subject            string
	FailedAttempts     int
	LastFailure        time.Time
	Locked             bool
	LockedUntil        time.Time
	KnownDevices       map[string]Device
	KnownLocations     map[string]time.Time
	PasswordHistory    []PasswordEntry
	LastPasswordChange time.Time
	SuspiciousScore    int
	SecurityLevel      SecurityLevel
	SuccessfulLogins   int

	successHours []int
	events       []SecurityEvent
}

func newProfile(subject string) *Profile {
	return &Profile{
		Subject:        subject,
		KnownDevices:   make(map[string]Device),
		KnownLocations: make(map[string]time.Time),
		SecurityLevel:  LevelMedium,
	}
}

func (p *Profile) snapshot() Profile {
	out := *p
	out.KnownDevices = make(map[string]Device, len(p.KnownDevices))
	for k, v := range p.KnownDevices {
		out.KnownDevices[k] = v
	}
	out.KnownLocations = make(map[string]time.Time, len(p.KnownLocations))
	for k, v := range p.KnownLocations {
		out.KnownLocations[k] = v
	}
	out.PasswordHistory = append([]PasswordEntry(nil), p.PasswordHistory...)
	out.successHours = nil
	out.events = nil
	return out
}

// Attempt describes one login attempt.
type Attempt struct {
	Identifier  string
	IP          string
	UserAgent   string
	Fingerprint string
	Device      DeviceInfo
	At          time.Time
}

// LockState answers [Guard.IsLocked].
type LockState struct {
	Locked bool
	Until  time.Time
}

// FailureOutcome is the state after [Guard.RecordFailure]. Engaged is set on
// the failure that caused the lock.
type FailureOutcome struct {
	Count   int
	Locked  bool
	Until   time.Time
	Engaged bool
}

// Assessment is the risk verdict for one attempt.
type Assessment struct {
	Score       int
	Blocked     bool
	Fingerprint string
	Location    string
	NewDevice   bool
	NewLocation bool
	UnusualHour bool
}

// EventType classifies a [SecurityEvent].
type EventType string

const (
	EventLoginSuccess    EventType = "login_success"
	EventLoginFailure    EventType = "login_failure"
	EventAccountLocked   EventType = "account_locked"
	EventAccountUnlocked EventType = "account_unlocked"
	EventSuspicious      EventType = "suspicious_activity"
	EventPasswordChanged EventType = "password_changed"
	EventDeviceTrusted   EventType = "device_trusted"

	// EventCredentialsVerified marks a correct credential whose login still
	// waits on MFA or a password change.
	EventCredentialsVerified EventType = "credentials_verified"
)

// Severity grades a [SecurityEvent].
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is one entry of a subject's security log.
type SecurityEvent struct {
	ID        string
	Subject   string
	Type      EventType
	Severity  Severity
	Details   map[string]any
	IP        string
	UserAgent string
	At        time.Time
}

// LoginRecord is one entry of the login history.
type LoginRecord struct {
	Subject     string
	Identifier  string
	IP          string
	UserAgent   string
	Fingerprint string
	Location    string
	Success     bool
	Score       int
	At          time.Time
}
