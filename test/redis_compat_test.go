//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/portalauth"
	"github.com/MrEthical07/portalauth/jwt"
)

func TestRedisCompatLifecycle(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			client := mode.setup(t)
			engine := newIntegrationEngine(t, client, nil)
			ctx := context.Background()

			first := login(t, engine, "alice", "laptop")
			second := login(t, engine, "alice", "phone")

			if v := engine.Verify(first.AccessToken, jwt.KindAccess); !v.Valid {
				t.Fatalf("expected valid access token, got %+v", v)
			}
			if n, err := engine.ActiveSessionCount("id-alice"); err != nil || n != 2 {
				t.Fatalf("expected 2 sessions, got %d (%v)", n, err)
			}

			refreshed := engine.Refresh(ctx, first.RefreshToken)
			if !refreshed.Success {
				t.Fatalf("refresh failed: %s %v", refreshed.Code, refreshed.Err)
			}

			if res := engine.Logout(ctx, second.AccessToken, portalauth.LogoutOptions{}); !res.Success {
				t.Fatalf("logout failed: %v", res.Err)
			}
			if v := engine.Verify(second.AccessToken, jwt.KindAccess); v.Code() != portalauth.CodeTokenBlacklisted {
				t.Fatalf("expected blacklisted token after logout, got %+v", v)
			}

			if res := engine.Logout(ctx, refreshed.AccessToken, portalauth.LogoutOptions{RevokeAll: true}); !res.Success {
				t.Fatalf("logout all failed: %v", res.Err)
			}
			if n, _ := engine.ActiveSessionCount("id-alice"); n != 0 {
				t.Fatalf("expected no sessions after logout all, got %d", n)
			}
		})
	}
}

func TestRedisCompatRestore(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			client := mode.setup(t)

			before := newIntegrationEngine(t, client, nil)
			res := login(t, before, "bob", "desk")
			if err := before.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			after := newIntegrationEngine(t, client, nil)
			if v := after.Verify(res.AccessToken, jwt.KindAccess); !v.Valid {
				t.Fatalf("expected restored token to verify, got %+v", v)
			}
			if refreshed := after.Refresh(context.Background(), res.RefreshToken); !refreshed.Success {
				t.Fatalf("expected restored chain to rotate, got %s %v", refreshed.Code, refreshed.Err)
			}
		})
	}
}

func TestRedisCompatRefreshRaceSingleWinner(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			client := mode.setup(t)
			engine := newIntegrationEngine(t, client, nil)
			token := login(t, engine, "alice", "laptop").RefreshToken

			const workers = 16
			start := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(workers)

			results := make(chan portalauth.RefreshResult, workers)
			for i := 0; i < workers; i++ {
				go func() {
					defer wg.Done()
					<-start
					results <- engine.Refresh(context.Background(), token)
				}()
			}

			close(start)
			wg.Wait()
			close(results)

			success := 0
			for res := range results {
				switch {
				case res.Success:
					success++
				case res.Code == portalauth.CodeTokenBlacklisted, res.Code == portalauth.CodeRefreshTokenNotFound:
				default:
					t.Fatalf("unexpected refresh failure: %s %v", res.Code, res.Err)
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly one winner, got %d", success)
			}
		})
	}
}

func TestRedisCompatSharedRateLimit(t *testing.T) {
	for _, mode := range redisModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			client := mode.setup(t)
			limit := func(cfg *portalauth.Config) { cfg.RateLimit.LoginPoints = 3 }
			a := newIntegrationEngine(t, client, limit)
			b := newIntegrationEngine(t, client, limit)
			ctx := context.Background()
			lc := portalauth.LoginContext{IP: "192.0.2.44"}

			a.Login(ctx, "alice", "nope", lc)
			b.Login(ctx, "alice", "nope", lc)
			a.Login(ctx, "alice", "nope", lc)

			res := b.Login(ctx, "alice", integrationPass, lc)
			if res.Code != portalauth.CodeRateLimited {
				t.Fatalf("expected shared limit to reject, got %s", res.Code)
			}
		})
	}
}
