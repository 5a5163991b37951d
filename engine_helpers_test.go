package portalauth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	alicePass    = "correct-horse-1"
	testIP       = "198.51.100.7"
	testAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	aliceID      = "u-alice"
	aliceSubject = "alice"
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

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]User
	secrets map[string]string
	perms   map[string][]string

	delay time.Duration
	err   error
	calls atomic.Int64
}

func newFakeDirectory() *fakeDirectory {
	d := &fakeDirectory{
		users:   make(map[string]User),
		secrets: make(map[string]string),
		perms:   make(map[string][]string),
	}
	d.add(User{
		ID:          aliceID,
		Username:    "alice",
		Email:       "alice@example.com",
		Name:        "Alice Liddell",
		Role:        "user",
		Permissions: []string{"docs:read"},
		Scopes:      []string{"portal"},
	}, alicePass)
	return d
}

func (d *fakeDirectory) add(u User, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	d.secrets[u.ID] = secret
}

func (d *fakeDirectory) update(id string, fn func(*User)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[id]
	fn(&u)
	d.users[id] = u
}

func (d *fakeDirectory) setFailure(delay time.Duration, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
	d.err = err
}

func (d *fakeDirectory) ValidateCredentials(ctx context.Context, identifier, secret, _, _ string) (*User, error) {
	d.calls.Add(1)

	d.mu.Lock()
	delay, failure := d.delay, d.err
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, u := range d.users {
		if !strings.EqualFold(u.Username, identifier) && !strings.EqualFold(u.Email, identifier) {
			continue
		}
		if d.secrets[id] != secret {
			return nil, nil
		}
		out := u
		return &out, nil
	}
	return nil, nil
}

func (d *fakeDirectory) GetUser(_ context.Context, id string) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (d *fakeDirectory) GetPermissions(_ context.Context, id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.perms[id]...), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) count(typ EventType) int {
	n := 0
	for _, t := range l.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Session.SweepInterval = 0
	cfg.Security.SweepInterval = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Password.Hasher = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Directory.Timeout = time.Second
	return cfg
}

type testEngine struct {
	*Engine
	dir    *fakeDirectory
	clock  *fakeClock
	events *eventLog
}

func newTestEngine(t testing.TB, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	te := &testEngine{
		dir:    newFakeDirectory(),
		clock:  &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		events: &eventLog{},
	}

	b := New().
		WithConfig(cfg).
		WithDirectory(te.dir).
		WithClock(te.clock.Now).
		WithObserver(te.events).
		WithRoles(map[string][]string{
			"admin": {"*"},
			"user":  {"portal:read"},
		})
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	te.Engine = engine
	return te
}

func deviceContext(deviceID string) LoginContext {
	return LoginContext{IP: testIP, UserAgent: testAgent, DeviceID: deviceID}
}

func (te *testEngine) mustLogin(t testing.TB, deviceID string) LoginResult {
	t.Helper()
	res := te.Login(context.Background(), "alice", alicePass, deviceContext(deviceID))
	if !res.Success {
		t.Fatalf("login failed: code=%s err=%v", res.Code, res.Err)
	}
	return res
}
