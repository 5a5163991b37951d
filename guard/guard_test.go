package guard

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/portalauth/password"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newGuardTest(mutate func(*Config)) (*Guard, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.Clock = clock.Now
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), clock
}

func attempt(ip, ua string) Attempt {
	return Attempt{Identifier: "alice", IP: ip, UserAgent: ua}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	g, clock := newGuardTest(nil)

	for i := 1; i <= 4; i++ {
		out := g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
		require.Equal(t, i, out.Count)
		require.False(t, out.Locked)
		require.False(t, g.IsLocked("alice").Locked)
	}

	out := g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	require.True(t, out.Locked)
	require.True(t, out.Engaged)
	require.Equal(t, clock.Now().Add(15*time.Minute), out.Until)

	state := g.IsLocked("alice")
	require.True(t, state.Locked)
	require.True(t, state.Until.After(clock.Now()))

	// Further failures keep the lock without re-engaging it.
	out = g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	require.True(t, out.Locked)
	require.False(t, out.Engaged)

	events := g.SecurityEvents("alice", 0)
	require.NotEmpty(t, events)
	var locked int
	for _, e := range events {
		if e.Type == EventAccountLocked {
			locked++
			require.Equal(t, SeverityHigh, e.Severity)
		}
	}
	require.Equal(t, 1, locked)
}

func TestLockExpiresLazily(t *testing.T) {
	g, clock := newGuardTest(func(c *Config) { c.MaxAttempts = 2 })

	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	require.True(t, g.IsLocked("alice").Locked)

	clock.Advance(15 * time.Minute)
	require.True(t, g.IsLocked("alice").Locked, "lock holds until strictly after the unlock time")

	clock.Advance(time.Second)
	require.False(t, g.IsLocked("alice").Locked)

	p, ok := g.Profile("alice")
	require.True(t, ok)
	require.Zero(t, p.FailedAttempts)
	require.Equal(t, EventAccountUnlocked, g.SecurityEvents("alice", 1)[0].Type)
}

func TestRecordSuccessResets(t *testing.T) {
	g, _ := newGuardTest(nil)

	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	g.RecordSuccess("alice", attempt("10.0.0.1", "ua"))

	p, ok := g.Profile("alice")
	require.True(t, ok)
	require.Zero(t, p.FailedAttempts)
	require.False(t, p.Locked)
	require.Equal(t, 1, p.SuccessfulLogins)
}

func TestRecordVerifiedKeepsFailures(t *testing.T) {
	g, _ := newGuardTest(func(c *Config) { c.MaxAttempts = 2 })

	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	g.RecordVerified("alice", attempt("10.0.0.1", "ua"))

	p, ok := g.Profile("alice")
	require.True(t, ok)
	require.Equal(t, 2, p.FailedAttempts)
	require.True(t, g.IsLocked("alice").Locked)
	require.Equal(t, 1, p.SuccessfulLogins)
	require.Equal(t, EventCredentialsVerified, g.SecurityEvents("alice", 1)[0].Type)
	require.True(t, g.LoginHistory("alice", 1)[0].Success)
}

func TestResetFailures(t *testing.T) {
	g, _ := newGuardTest(func(c *Config) { c.MaxAttempts = 1 })

	g.RecordFailure("alice", attempt("10.0.0.1", "ua"))
	require.True(t, g.IsLocked("alice").Locked)

	g.ResetFailures("alice")
	require.False(t, g.IsLocked("alice").Locked)

	// Unknown subjects are a no-op.
	g.ResetFailures("nobody")
	_, ok := g.Profile("nobody")
	require.False(t, ok)
}

func TestConcurrentFailuresLockExactlyOnce(t *testing.T) {
	g, _ := newGuardTest(nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	engaged := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.RecordFailure("alice", attempt("10.0.0.1", "ua")).Engaged {
				mu.Lock()
				engaged++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, engaged)
	p, _ := g.Profile("alice")
	require.Equal(t, 32, p.FailedAttempts)
}

func TestAssessFirstLoginScoresZero(t *testing.T) {
	g, _ := newGuardTest(nil)

	res := g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	require.Zero(t, res.Score)
	require.False(t, res.Blocked)
	require.Equal(t, "203.0.113.0/24", res.Location)

	p, _ := g.Profile("u1")
	require.Contains(t, p.KnownLocations, "203.0.113.0/24")
	require.Contains(t, p.KnownDevices, res.Fingerprint)
}

func TestAssessNewDeviceAndLocation(t *testing.T) {
	g, _ := newGuardTest(nil)

	g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	g.RecordSuccess("u1", attempt("203.0.113.7", "Mozilla/5.0"))

	same := g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	require.Zero(t, same.Score)

	// Same /24, new browser: only the device is new.
	dev := g.Assess("u1", attempt("203.0.113.99", "curl/8.0"))
	require.True(t, dev.NewDevice)
	require.False(t, dev.NewLocation)
	require.Equal(t, 20, dev.Score)

	both := g.Assess("u1", attempt("198.51.100.4", "Other/1.0"))
	require.True(t, both.NewDevice)
	require.True(t, both.NewLocation)
	require.Equal(t, 50, both.Score)
	require.False(t, both.Blocked)

	// Known now, so the same attempt scores lower next time.
	again := g.Assess("u1", attempt("198.51.100.4", "Other/1.0"))
	require.Zero(t, again.Score)
}

func TestAssessUnusualHourWarmup(t *testing.T) {
	g, clock := newGuardTest(nil)
	base := clock.Now()

	for i := 0; i < 9; i++ {
		g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
		g.RecordSuccess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	}

	clock.Set(base.Add(18 * time.Hour))
	res := g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	require.False(t, res.UnusualHour, "fewer than ten logins never flag the hour")

	clock.Set(base)
	g.RecordSuccess("u1", attempt("203.0.113.7", "Mozilla/5.0"))

	clock.Set(base.Add(18 * time.Hour))
	res = g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	require.True(t, res.UnusualHour)
	require.Equal(t, 25, res.Score)
	require.False(t, res.Blocked)
}

func TestAssessBlocksWhenAllAnomalies(t *testing.T) {
	g, clock := newGuardTest(nil)
	base := clock.Now()

	for i := 0; i < 10; i++ {
		g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
		g.RecordSuccess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	}

	clock.Set(base.Add(17 * time.Hour))
	res := g.Assess("u1", attempt("198.51.100.4", "Other/1.0"))
	require.Equal(t, 75, res.Score)
	require.True(t, res.Blocked)

	events := g.SecurityEvents("u1", 1)
	require.Len(t, events, 1)
	require.Equal(t, EventSuspicious, events[0].Type)
	require.Equal(t, SeverityHigh, events[0].Severity)

	p, _ := g.Profile("u1")
	require.Equal(t, LevelHigh, p.SecurityLevel)
}

func TestAssessScoreCapped(t *testing.T) {
	g, _ := newGuardTest(func(c *Config) {
		c.NewLocationWeight = 60
		c.NewDeviceWeight = 60
		c.MaxScore = 100
	})

	g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	g.RecordSuccess("u1", attempt("203.0.113.7", "Mozilla/5.0"))

	res := g.Assess("u1", attempt("198.51.100.4", "Other/1.0"))
	require.Equal(t, 100, res.Score)
	require.True(t, res.Blocked)
}

func TestCustomResolver(t *testing.T) {
	g, _ := newGuardTest(func(c *Config) {
		c.Resolver = LocationResolverFunc(func(ip string) string {
			if ip == "10.0.0.1" {
				return "office"
			}
			return UnknownLocation
		})
	})

	g.Assess("u1", attempt("10.0.0.1", "Mozilla/5.0"))
	g.RecordSuccess("u1", attempt("10.0.0.1", "Mozilla/5.0"))

	res := g.Assess("u1", attempt("192.0.2.1", "Mozilla/5.0"))
	require.Equal(t, UnknownLocation, res.Location)
	require.False(t, res.NewLocation, "unresolvable locations are never novel")
}

func TestNetworkResolver(t *testing.T) {
	r := NetworkResolver{}
	require.Equal(t, "192.0.2.0/24", r.Resolve("192.0.2.200"))
	require.Equal(t, "192.0.2.0/24", r.Resolve("::ffff:192.0.2.1"))
	require.Equal(t, "2001:db8:1::/48", r.Resolve("2001:db8:1:2::5"))
	require.Equal(t, UnknownLocation, r.Resolve("not-an-ip"))
	require.Equal(t, UnknownLocation, r.Resolve(""))
}

func TestTrustDevice(t *testing.T) {
	g, _ := newGuardTest(nil)

	res := g.Assess("u1", attempt("203.0.113.7", "Mozilla/5.0"))
	require.True(t, g.TrustDevice("u1", res.Fingerprint))
	require.False(t, g.TrustDevice("u1", "deadbeefdeadbeef"))
	require.False(t, g.TrustDevice("nobody", res.Fingerprint))

	p, _ := g.Profile("u1")
	require.True(t, p.KnownDevices[res.Fingerprint].Trusted)
}

func TestPasswordHistory(t *testing.T) {
	hasher := password.NewBcrypt(4)
	g, _ := newGuardTest(func(c *Config) {
		c.Hasher = hasher
		c.PasswordHistory = 2
	})

	for _, pw := range []string{"first-Pass1!", "second-Pass2!", "third-Pass3!"} {
		h, err := hasher.Hash(pw)
		require.NoError(t, err)
		g.RecordPasswordChange("u1", h)
	}

	reused, err := g.CheckPasswordHistory("u1", "third-Pass3!")
	require.NoError(t, err)
	require.True(t, reused)

	reused, err = g.CheckPasswordHistory("u1", "second-Pass2!")
	require.NoError(t, err)
	require.True(t, reused)

	reused, err = g.CheckPasswordHistory("u1", "first-Pass1!")
	require.NoError(t, err)
	require.False(t, reused, "oldest entry falls out of the bounded history")

	p, _ := g.Profile("u1")
	require.Len(t, p.PasswordHistory, 2)
}

func TestPasswordHistoryWithoutHasher(t *testing.T) {
	g, _ := newGuardTest(nil)
	_, err := g.CheckPasswordHistory("u1", "anything")
	require.ErrorIs(t, err, ErrNoHasher)
}

func TestLoginHistoryNewestFirst(t *testing.T) {
	g, clock := newGuardTest(nil)

	g.RecordFailure("u1", attempt("10.0.0.1", "ua"))
	clock.Advance(time.Minute)
	g.RecordSuccess("u1", attempt("10.0.0.1", "ua"))
	g.RecordSuccess("u2", attempt("10.0.0.2", "ua"))

	hist := g.LoginHistory("u1", 0)
	require.Len(t, hist, 2)
	require.True(t, hist[0].Success)
	require.False(t, hist[1].Success)

	require.Len(t, g.LoginHistory("u1", 1), 1)
}

func TestSweepPrunesOldEntries(t *testing.T) {
	g, clock := newGuardTest(nil)

	g.RecordFailure("u1", attempt("10.0.0.1", "ua"))
	clock.Advance(8 * 24 * time.Hour)
	g.RecordFailure("u1", attempt("10.0.0.1", "ua"))

	// One login record is past the 7 day retention; both events are within 30 days.
	require.Equal(t, 1, g.Sweep(clock.Now()))
	require.Len(t, g.LoginHistory("u1", 0), 1)
	require.Len(t, g.SecurityEvents("u1", 0), 2)

	clock.Advance(31 * 24 * time.Hour)
	require.Equal(t, 3, g.Sweep(clock.Now()))
	require.Empty(t, g.SecurityEvents("u1", 0))
}

func TestEventsBounded(t *testing.T) {
	g, _ := newGuardTest(func(c *Config) {
		c.MaxEventsPerUser = 3
		c.MaxAttempts = 100
	})

	for i := 0; i < 10; i++ {
		g.RecordFailure("u1", attempt("10.0.0.1", "ua"))
	}
	require.Len(t, g.SecurityEvents("u1", 0), 3)
}
