package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBackendTest(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBackend(client, ""), mr
}

func TestRedisBackendSaveLoadDelete(t *testing.T) {
	b, mr := newBackendTest(t)
	ctx := context.Background()

	if err := b.Save(ctx, KindToken, "a", []byte(`1`), time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := b.Save(ctx, KindToken, "b", []byte(`2`), 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL("pa:led:token:b"); ttl != time.Second {
		t.Fatalf("expected ttl floored to 1s, got %v", ttl)
	}

	seen := map[string]string{}
	err := b.Load(ctx, KindToken, func(key string, value []byte) error {
		seen[key] = string(value)
		return nil
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(seen) != 2 || seen["a"] != "1" || seen["b"] != "2" {
		t.Fatalf("unexpected load result: %v", seen)
	}

	if err := b.Delete(ctx, KindToken, "a", "missing"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("pa:led:token:a") {
		t.Fatal("expected key deleted")
	}
}

func TestLedgerRestoresFromBackendAfterReconnect(t *testing.T) {
	backend, _ := newBackendTest(t)
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	cfg := DefaultConfig()
	cfg.SweepInterval = 0
	cfg.Clock = clock.Now

	first := NewLedger(cfg, backend)
	if err := first.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	now := clock.Now()
	_, err := first.Put(ctx,
		Session{UserID: "u1", SessionID: "s1", DeviceID: "d1", ExpiresAt: now.Add(time.Hour)},
		TokenRecord{TokenID: "at-1", Kind: "access", IssuedAt: now, ExpiresAt: now.Add(15 * time.Minute)},
	)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = first.PutChain(ctx, Chain{FamilyID: "fam", TokenID: "rt-1", UserID: "u1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)})
	_ = first.Blacklist(ctx, "revoked", now.Add(time.Hour), ReasonExplicit)
	_, _ = first.RevokeFamily(ctx, "old-fam", now.Add(time.Hour), "")
	_ = first.Disconnect(ctx)

	second := NewLedger(cfg, backend)
	if err := second.Connect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer second.Disconnect(ctx)

	if _, err := second.Get(ctx, "at-1"); err != nil {
		t.Fatalf("expected access token restored, got %v", err)
	}
	if c, err := second.Chain("rt-1"); err != nil || c.FamilyID != "fam" {
		t.Fatalf("expected chain restored, got %+v err=%v", c, err)
	}
	if banned, _ := second.IsBlacklisted("revoked"); !banned {
		t.Fatal("expected blacklist restored")
	}
	if revoked, _ := second.FamilyRevoked("old-fam"); !revoked {
		t.Fatal("expected revoked family restored")
	}
	if list, _ := second.ListByUser("u1"); len(list) != 1 || list[0].DeviceID != "d1" {
		t.Fatalf("expected session restored, got %+v", list)
	}
}

func TestConnectFailsWhenBackendDown(t *testing.T) {
	backend, mr := newBackendTest(t)
	mr.Close()

	l := NewLedger(DefaultConfig(), backend)
	if err := l.Connect(context.Background()); !errors.Is(err, ErrLedgerUnavailable) {
		t.Fatalf("expected ErrLedgerUnavailable, got %v", err)
	}
	if l.Connected() {
		t.Fatal("ledger must stay disconnected")
	}
}

func TestLedgerPing(t *testing.T) {
	backend, mr := newBackendTest(t)
	ctx := context.Background()

	l := NewLedger(DefaultConfig(), backend)
	if !l.Persistent() {
		t.Fatal("ledger with a backend must report persistent")
	}
	if _, err := l.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mr.Close()
	if _, err := l.Ping(ctx); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}

	volatile := NewLedger(DefaultConfig(), nil)
	if volatile.Persistent() {
		t.Fatal("ledger without a backend must not report persistent")
	}
	if d, err := volatile.Ping(ctx); err != nil || d != 0 {
		t.Fatalf("expected immediate nil ping, got %v %v", d, err)
	}
}
