package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/portalauth"
)

type userState struct {
	id      string
	access  string
	refresh string
	mu      sync.Mutex
}

// seededDirectory accepts "pw-<username>" as the password of every seeded
// user.
type seededDirectory struct {
	users map[string]*portalauth.User
}

func (d *seededDirectory) ValidateCredentials(_ context.Context, identifier, secret, _, _ string) (*portalauth.User, error) {
	u, ok := d.users[identifier]
	if !ok || secret != "pw-"+identifier {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *seededDirectory) GetUser(_ context.Context, id string) (*portalauth.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *seededDirectory) GetPermissions(context.Context, string) ([]string, error) {
	return nil, nil
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to log in")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg, err := portalauth.LoadConfigFromEnv("PORTALAUTH_")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.JWT.Secret == "" && cfg.JWT.PrivateKeyFile == "" {
		cfg.JWT.Secret = "loadtest-secret-loadtest-secret!"
	}
	// Every login comes from one address; the limiter would measure itself.
	cfg.RateLimit.Enabled = false
	cfg.Refresh.RotationCeiling = 0

	dir := &seededDirectory{users: make(map[string]*portalauth.User, *users)}
	for i := 0; i < *users; i++ {
		name := fmt.Sprintf("user-%d", i)
		dir.users[name] = &portalauth.User{ID: name, Username: name, Role: "member", Permissions: []string{"docs:read"}}
	}

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithDirectory(dir).
		WithRedis(client).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	if err := engine.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	states := make([]userState, *users)
	fmt.Printf("logging in %d users...\n", *users)
	startSeed := time.Now()
	for i := 0; i < *users; i++ {
		name := fmt.Sprintf("user-%d", i)
		res := engine.Login(ctx, name, "pw-"+name, portalauth.LoginContext{IP: "192.0.2.10", DeviceID: "loadtest"})
		if !res.Success {
			fmt.Fprintf(os.Stderr, "login %s failed: %s %v\n", name, res.Code, res.Err)
			os.Exit(1)
		}
		states[i] = userState{id: name, access: res.AccessToken, refresh: res.RefreshToken}
	}
	fmt.Printf("logged in after %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand, _ int) bool {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		header := "Bearer " + state.access
		state.mu.Unlock()
		return engine.AuthenticateRequest(ctx, header, []string{"docs:read"}, nil).Success
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand, _ int) bool {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		res := engine.Refresh(ctx, state.refresh)
		if !res.Success {
			return false
		}
		state.access = res.AccessToken
		state.refresh = res.RefreshToken
		return true
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("verify failures=%d refresh failures=%d\n",
		snap.Counters[portalauth.MetricVerifyFailure],
		snap.Counters[portalauth.MetricRefreshFailure],
	)
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) bool) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r, i)
				d := time.Since(t0)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
