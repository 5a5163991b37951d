package guard

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/internal"
	"github.com/MrEthical07/portalauth/internal/keylock"
	"github.com/MrEthical07/portalauth/password"
)

// ErrNoHasher is returned by password-history checks when no hasher is set.
var ErrNoHasher = errors.New("guard: password hasher not configured")

// Config tunes a [Guard].
type Config struct {
	MaxAttempts     int
	LockoutDuration time.Duration

	NewLocationWeight int
	NewDeviceWeight   int
	UnusualHourWeight int
	MaxScore          int
	HourWarmup        int
	HourWindow        int
	TimeZone          *time.Location

	PasswordHistory int

	HistoryRetention time.Duration
	EventRetention   time.Duration
	MaxLoginHistory  int
	MaxEventsPerUser int

	Resolver LocationResolver
	Hasher   password.Hasher
	Clock    func() time.Time
	Logger   *zap.Logger
}

// DefaultConfig locks after 5 failures for 15 minutes and blocks a login only
// when location, device and hour are all new (30 + 20 + 25 >= 75).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       5,
		LockoutDuration:   15 * time.Minute,
		NewLocationWeight: 30,
		NewDeviceWeight:   20,
		UnusualHourWeight: 25,
		MaxScore:          75,
		HourWarmup:        10,
		HourWindow:        50,
		TimeZone:          time.UTC,
		PasswordHistory:   5,
		HistoryRetention:  7 * 24 * time.Hour,
		EventRetention:    30 * 24 * time.Hour,
		MaxLoginHistory:   10000,
		MaxEventsPerUser:  500,
	}
}

// Guard holds security profiles for every subject it has seen. A subject is
// a user id or, for lockout before the user is known, a login identifier.
type Guard struct {
	config Config
	logger *zap.Logger
	locks  *keylock.Striped

	mu       sync.RWMutex
	profiles map[string]*Profile

	histMu  sync.Mutex
	history []LoginRecord
}

// New returns a Guard. Zero-valued fields of cfg fall back to [DefaultConfig].
func New(cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = def.MaxScore
	}
	if cfg.HourWarmup <= 0 {
		cfg.HourWarmup = def.HourWarmup
	}
	if cfg.HourWindow <= 0 {
		cfg.HourWindow = def.HourWindow
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.UTC
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = def.HistoryRetention
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = def.EventRetention
	}
	if cfg.MaxLoginHistory <= 0 {
		cfg.MaxLoginHistory = def.MaxLoginHistory
	}
	if cfg.MaxEventsPerUser <= 0 {
		cfg.MaxEventsPerUser = def.MaxEventsPerUser
	}
	if cfg.Resolver == nil {
		cfg.Resolver = NetworkResolver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Guard{
		config:   cfg,
		logger:   cfg.Logger,
		locks:    keylock.New(keylock.DefaultStripes),
		profiles: make(map[string]*Profile),
	}
}

func (g *Guard) now() time.Time { return g.config.Clock() }

// profile returns the subject's profile, creating it lazily. Callers must hold
// the subject's stripe.
func (g *Guard) profile(subject string) *Profile {
	g.mu.RLock()
	p, ok := g.profiles[subject]
	g.mu.RUnlock()
	if ok {
		return p
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok = g.profiles[subject]; !ok {
		p = newProfile(subject)
		g.profiles[subject] = p
	}
	return p
}

func (g *Guard) lookup(subject string) (*Profile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.profiles[subject]
	return p, ok
}

// IsLocked reports the subject's lock state. A lock that has run out is
// cleared, together with the failure counter, before answering.
func (g *Guard) IsLocked(subject string) LockState {
	unlock := g.locks.Lock(subject)
	defer unlock()

	p, ok := g.lookup(subject)
	if !ok || !p.Locked {
		return LockState{}
	}

	now := g.now()
	if now.After(p.LockedUntil) {
		p.Locked = false
		p.LockedUntil = time.Time{}
		p.FailedAttempts = 0
		g.recordEventLocked(p, EventAccountUnlocked, SeverityLow, Attempt{At: now}, map[string]any{"reason": "lockout expired"})
		return LockState{}
	}
	return LockState{Locked: true, Until: p.LockedUntil}
}

// RecordFailure counts a failed attempt. Reaching MaxAttempts locks the
// subject for LockoutDuration.
func (g *Guard) RecordFailure(subject string, a Attempt) FailureOutcome {
	unlock := g.locks.Lock(subject)
	defer unlock()

	now := g.attemptTime(&a)
	p := g.profile(subject)
	p.FailedAttempts++
	p.LastFailure = now

	out := FailureOutcome{Count: p.FailedAttempts}
	if !p.Locked && p.FailedAttempts >= g.config.MaxAttempts {
		p.Locked = true
		p.LockedUntil = now.Add(g.config.LockoutDuration)
		p.SecurityLevel = LevelHigh
		out.Engaged = true
		g.recordEventLocked(p, EventAccountLocked, SeverityHigh, a, map[string]any{"failed_attempts": p.FailedAttempts})
		g.logger.Warn("account locked",
			zap.String("subject", internal.TokenDigest(subject)),
			zap.Int("failed_attempts", p.FailedAttempts),
			zap.Time("until", p.LockedUntil),
		)
	} else {
		g.recordEventLocked(p, EventLoginFailure, SeverityMedium, a, nil)
	}
	out.Locked = p.Locked
	out.Until = p.LockedUntil

	g.appendHistory(LoginRecord{
		Subject:     subject,
		Identifier:  a.Identifier,
		IP:          a.IP,
		UserAgent:   a.UserAgent,
		Fingerprint: g.fingerprint(a),
		Location:    g.config.Resolver.Resolve(a.IP),
		At:          now,
	})
	return out
}

// RecordSuccess clears the subject's failures and lock, and adds the attempt
// to its success history used by the unusual-hour check.
func (g *Guard) RecordSuccess(subject string, a Attempt) {
	unlock := g.locks.Lock(subject)
	defer unlock()

	now := g.attemptTime(&a)
	p := g.profile(subject)
	p.FailedAttempts = 0
	p.LastFailure = time.Time{}
	p.Locked = false
	p.LockedUntil = time.Time{}
	g.recordVerifiedLocked(p, subject, a, now, EventLoginSuccess)
}

// RecordVerified adds a credential-verified attempt that stopped short of
// issuing tokens (MFA or a forced password change) to the success history.
// Failures and any lock are left as they are.
func (g *Guard) RecordVerified(subject string, a Attempt) {
	unlock := g.locks.Lock(subject)
	defer unlock()

	now := g.attemptTime(&a)
	g.recordVerifiedLocked(g.profile(subject), subject, a, now, EventCredentialsVerified)
}

func (g *Guard) recordVerifiedLocked(p *Profile, subject string, a Attempt, now time.Time, ev EventType) {
	p.SuccessfulLogins++
	p.successHours = append(p.successHours, now.In(g.config.TimeZone).Hour())
	if over := len(p.successHours) - g.config.HourWindow; over > 0 {
		p.successHours = append(p.successHours[:0], p.successHours[over:]...)
	}
	g.recordEventLocked(p, ev, SeverityLow, a, nil)

	g.appendHistory(LoginRecord{
		Subject:     subject,
		Identifier:  a.Identifier,
		IP:          a.IP,
		UserAgent:   a.UserAgent,
		Fingerprint: g.fingerprint(a),
		Location:    g.config.Resolver.Resolve(a.IP),
		Success:     true,
		Score:       p.SuspiciousScore,
		At:          now,
	})
}

// ResetFailures clears the failure counter and any lock without touching
// login history.
func (g *Guard) ResetFailures(subject string) {
	unlock := g.locks.Lock(subject)
	defer unlock()

	if p, ok := g.lookup(subject); ok {
		p.FailedAttempts = 0
		p.LastFailure = time.Time{}
		p.Locked = false
		p.LockedUntil = time.Time{}
	}
}

// Assess scores a credential-verified attempt for subject and then records
// its device and location as known.
func (g *Guard) Assess(subject string, a Attempt) Assessment {
	unlock := g.locks.Lock(subject)
	defer unlock()

	now := g.attemptTime(&a)
	p := g.profile(subject)

	res := Assessment{
		Fingerprint: g.fingerprint(a),
		Location:    g.config.Resolver.Resolve(a.IP),
	}

	if p.SuccessfulLogins > 0 {
		if res.Location != UnknownLocation {
			if _, seen := p.KnownLocations[res.Location]; !seen {
				res.NewLocation = true
				res.Score += g.config.NewLocationWeight
			}
		}
		if res.Fingerprint != internal.UnknownDevice {
			if _, seen := p.KnownDevices[res.Fingerprint]; !seen {
				res.NewDevice = true
				res.Score += g.config.NewDeviceWeight
			}
		}
		if len(p.successHours) >= g.config.HourWarmup && !containsHour(p.successHours, now.In(g.config.TimeZone).Hour()) {
			res.UnusualHour = true
			res.Score += g.config.UnusualHourWeight
		}
		if res.Score > g.config.MaxScore {
			res.Score = g.config.MaxScore
		}
	}
	res.Blocked = res.Score >= g.config.MaxScore

	if res.Location != UnknownLocation {
		p.KnownLocations[res.Location] = now
	}
	if res.Fingerprint != internal.UnknownDevice {
		dev, ok := p.KnownDevices[res.Fingerprint]
		if !ok {
			dev = Device{Fingerprint: res.Fingerprint, Info: a.Device, FirstSeen: now}
		}
		dev.LastSeen = now
		p.KnownDevices[res.Fingerprint] = dev
	}

	p.SuspiciousScore = res.Score
	p.SecurityLevel = g.levelFor(res.Score)

	if res.Blocked {
		g.recordEventLocked(p, EventSuspicious, SeverityHigh, a, map[string]any{
			"score":        res.Score,
			"location":     res.Location,
			"fingerprint":  res.Fingerprint,
			"new_device":   res.NewDevice,
			"new_location": res.NewLocation,
			"unusual_hour": res.UnusualHour,
		})
		g.logger.Warn("suspicious login blocked",
			zap.String("subject", internal.TokenDigest(subject)),
			zap.Int("score", res.Score),
		)
	}
	return res
}

func (g *Guard) levelFor(score int) SecurityLevel {
	switch {
	case score >= g.config.MaxScore:
		return LevelHigh
	case score > 0:
		return LevelMedium
	default:
		return LevelLow
	}
}

// TrustDevice marks a known device as trusted. It reports false when the
// device has never been seen for subject.
func (g *Guard) TrustDevice(subject, fingerprint string) bool {
	unlock := g.locks.Lock(subject)
	defer unlock()

	p, ok := g.lookup(subject)
	if !ok {
		return false
	}
	dev, ok := p.KnownDevices[fingerprint]
	if !ok {
		return false
	}
	dev.Trusted = true
	p.KnownDevices[fingerprint] = dev
	g.recordEventLocked(p, EventDeviceTrusted, SeverityLow, Attempt{At: g.now()}, map[string]any{"fingerprint": fingerprint})
	return true
}

// Profile returns a copy of the subject's profile.
func (g *Guard) Profile(subject string) (Profile, bool) {
	unlock := g.locks.Lock(subject)
	defer unlock()

	p, ok := g.lookup(subject)
	if !ok {
		return Profile{}, false
	}
	return p.snapshot(), true
}

// CheckPasswordHistory reports whether candidate matches any retained hash.
func (g *Guard) CheckPasswordHistory(subject, candidate string) (bool, error) {
	if g.config.Hasher == nil {
		return false, ErrNoHasher
	}

	unlock := g.locks.Lock(subject)
	p, ok := g.lookup(subject)
	var hashes []string
	if ok {
		for _, e := range p.PasswordHistory {
			hashes = append(hashes, e.Hash)
		}
	}
	unlock()

	for _, h := range hashes {
		match, err := g.config.Hasher.Verify(candidate, h)
		if err != nil {
			g.logger.Warn("password history entry unreadable", zap.Error(err))
			continue
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// RecordPasswordChange appends hash to the subject's history, keeping the
// most recent PasswordHistory entries.
func (g *Guard) RecordPasswordChange(subject, hash string) {
	unlock := g.locks.Lock(subject)
	defer unlock()

	now := g.now()
	p := g.profile(subject)
	p.LastPasswordChange = now

	if g.config.PasswordHistory > 0 {
		p.PasswordHistory = append(p.PasswordHistory, PasswordEntry{Hash: hash, CreatedAt: now})
		if over := len(p.PasswordHistory) - g.config.PasswordHistory; over > 0 {
			p.PasswordHistory = append([]PasswordEntry(nil), p.PasswordHistory[over:]...)
		}
	}
	g.recordEventLocked(p, EventPasswordChanged, SeverityMedium, Attempt{At: now}, nil)
}

// SecurityEvents returns up to limit events for subject, newest first.
// A non-positive limit selects 50.
func (g *Guard) SecurityEvents(subject string, limit int) []SecurityEvent {
	if limit <= 0 {
		limit = 50
	}

	unlock := g.locks.Lock(subject)
	defer unlock()

	p, ok := g.lookup(subject)
	if !ok {
		return nil
	}
	out := make([]SecurityEvent, 0, min(limit, len(p.events)))
	for i := len(p.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.events[i])
	}
	return out
}

// LoginHistory returns up to limit attempts for subject, newest first.
// A non-positive limit selects 100.
func (g *Guard) LoginHistory(subject string, limit int) []LoginRecord {
	if limit <= 0 {
		limit = 100
	}

	g.histMu.Lock()
	defer g.histMu.Unlock()

	var out []LoginRecord
	for i := len(g.history) - 1; i >= 0 && len(out) < limit; i-- {
		if g.history[i].Subject == subject {
			out = append(out, g.history[i])
		}
	}
	return out
}

// Sweep prunes login history older than HistoryRetention and security events
// older than EventRetention. It returns how many entries were dropped.
func (g *Guard) Sweep(now time.Time) int {
	dropped := 0

	historyCutoff := now.Add(-g.config.HistoryRetention)
	g.histMu.Lock()
	keep := sort.Search(len(g.history), func(i int) bool { return !g.history[i].At.Before(historyCutoff) })
	if keep > 0 {
		dropped += keep
		g.history = append([]LoginRecord(nil), g.history[keep:]...)
	}
	g.histMu.Unlock()

	g.mu.RLock()
	subjects := make([]string, 0, len(g.profiles))
	for s := range g.profiles {
		subjects = append(subjects, s)
	}
	g.mu.RUnlock()

	eventCutoff := now.Add(-g.config.EventRetention)
	for _, s := range subjects {
		g.locks.With(s, func() {
			p, ok := g.lookup(s)
			if !ok {
				return
			}
			i := 0
			for i < len(p.events) && p.events[i].At.Before(eventCutoff) {
				i++
			}
			if i > 0 {
				dropped += i
				p.events = append([]SecurityEvent(nil), p.events[i:]...)
			}
		})
	}

	return dropped
}

func (g *Guard) recordEventLocked(p *Profile, typ EventType, sev Severity, a Attempt, details map[string]any) {
	at := a.At
	if at.IsZero() {
		at = g.now()
	}
	p.events = append(p.events, SecurityEvent{
		ID:        uuid.NewString(),
		Subject:   p.Subject,
		Type:      typ,
		Severity:  sev,
		Details:   details,
		IP:        a.IP,
		UserAgent: a.UserAgent,
		At:        at,
	})
	if over := len(p.events) - g.config.MaxEventsPerUser; over > 0 {
		p.events = append([]SecurityEvent(nil), p.events[over:]...)
	}
}

func (g *Guard) appendHistory(rec LoginRecord) {
	g.histMu.Lock()
	defer g.histMu.Unlock()

	g.history = append(g.history, rec)
	if over := len(g.history) - g.config.MaxLoginHistory; over > 0 {
		g.history = append([]LoginRecord(nil), g.history[over:]...)
	}
}

func (g *Guard) attemptTime(a *Attempt) time.Time {
	if a.At.IsZero() {
		a.At = g.now()
	}
	return a.At
}

func (g *Guard) fingerprint(a Attempt) string {
	if a.Fingerprint != "" {
		return a.Fingerprint
	}
	return internal.DeviceFingerprint(a.UserAgent, a.IP)
}

func containsHour(hours []int, h int) bool {
	for _, v := range hours {
		if v == h {
			return true
		}
	}
	return false
}
