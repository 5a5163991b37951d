//go:build integration
// +build integration

package test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/portalauth"
)

const (
	integrationSecret = "integration-secret-integration-!"
	integrationPass   = "tr0ub4dor&3"
)

// redisMode describes which Redis backend a test is running against.
type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

// redisModes always includes miniredis. A real standalone server is added
// when REDIS_ADDR is set (e.g. "127.0.0.1:6379").
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = rdb.Close(); mr.Close() })
				return rdb
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) redis.UniversalClient {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				// Flush so state does not leak between runs.
				rdb.FlushDB(context.Background())
				t.Cleanup(func() { rdb.FlushDB(context.Background()); _ = rdb.Close() })
				return rdb
			},
		})
	}
	return modes
}

type memberDirectory struct {
	users map[string]portalauth.User
}

func newMemberDirectory(names ...string) *memberDirectory {
	d := &memberDirectory{users: make(map[string]portalauth.User, len(names))}
	for _, name := range names {
		d.users[name] = portalauth.User{
			ID:          "id-" + name,
			Username:    name,
			Role:        "member",
			Permissions: []string{"docs:read"},
		}
	}
	return d
}

func (d *memberDirectory) ValidateCredentials(_ context.Context, identifier, secret, _, _ string) (*portalauth.User, error) {
	u, ok := d.users[strings.ToLower(identifier)]
	if !ok || secret != integrationPass {
		return nil, nil
	}
	return &u, nil
}

func (d *memberDirectory) GetUser(_ context.Context, id string) (*portalauth.User, error) {
	for _, u := range d.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, nil
}

func (d *memberDirectory) GetPermissions(context.Context, string) ([]string, error) {
	return nil, nil
}

func newIntegrationEngine(t *testing.T, client redis.UniversalClient, mutate func(*portalauth.Config)) *portalauth.Engine {
	t.Helper()

	cfg := portalauth.DefaultConfig()
	cfg.JWT.Secret = integrationSecret
	cfg.Session.SweepInterval = 0
	cfg.Security.SweepInterval = 0
	cfg.RateLimit.SweepInterval = 0
	cfg.Redis.Prefix = "it"
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := portalauth.New().
		WithConfig(cfg).
		WithDirectory(newMemberDirectory("alice", "bob")).
		WithRedis(client).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func login(t *testing.T, engine *portalauth.Engine, user, device string) portalauth.LoginResult {
	t.Helper()
	res := engine.Login(context.Background(), user, integrationPass, portalauth.LoginContext{IP: "192.0.2.44", DeviceID: device})
	if !res.Success {
		t.Fatalf("login %s failed: %s %v", user, res.Code, res.Err)
	}
	return res
}
