package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func testSecret() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Key:        SymmetricKey{Secret: testSecret()},
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Issuer:     "portal",
		Audience:   "portal-api",
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsMissingKeyMaterial(t *testing.T) {
	cases := []struct {
		name string
		key  SigningKey
	}{
		{name: "nil key", key: nil},
		{name: "empty secret", key: SymmetricKey{}},
		{name: "short secret", key: SymmetricKey{Secret: []byte("short")}},
		{name: "pair without private", key: AsymmetricKeyPair{}},
	}
	for _, tc := range cases {
		_, err := NewManager(Config{Key: tc.key, AccessTTL: time.Minute, RefreshTTL: time.Hour})
		if err == nil {
			t.Fatalf("%s: expected construction error", tc.name)
		}
	}
}

func TestNewManagerRejectsMismatchedEd25519Pair(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)

	_, err := NewManager(Config{
		Key:        AsymmetricKeyPair{Private: priv, Public: otherPub},
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})
	if err == nil {
		t.Fatal("expected mismatched key pair to be rejected")
	}
}

func TestSignAndParseRoundTrip(t *testing.T) {
	clock := newClock()
	m := newHSManager(t, clock)

	signed, issued, err := m.Sign(Claims{
		Kind:        KindAccess,
		Role:        "admin",
		Permissions: []string{"reports:read", "users:write"},
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: "u-1",
		},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if issued.ID == "" {
		t.Fatal("expected jti to be assigned")
	}

	claims, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u-1" || claims.Role != "admin" || len(claims.Permissions) != 2 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("expected access kind, got %q", claims.Kind)
	}
	if !claims.ExpiresAtTime().Equal(clock.now().Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAtTime())
	}
}

func TestSignAssignsFreshIDs(t *testing.T) {
	m := newHSManager(t, newClock())
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		_, c, err := m.Sign(Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{Subject: "u"}})
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, dup := seen[c.ID]; dup {
			t.Fatalf("duplicate jti %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
}

func TestParseExpired(t *testing.T) {
	clock := newClock()
	m := newHSManager(t, clock)

	signed, claims, err := m.Sign(Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{Subject: "u-1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	clock.advance(15*time.Minute + time.Second)
	if !m.Expired(claims) {
		t.Fatal("expected claims to be expired")
	}
	if _, err := m.Parse(signed); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	clock := newClock()
	m := newHSManager(t, clock)

	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	claims := Claims{
		Kind: KindAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "u-1",
			Issuer:    "portal",
			Audience:  gjwt.ClaimStrings{"portal-api"},
			IssuedAt:  gjwt.NewNumericDate(clock.now()),
			ExpiresAt: gjwt.NewNumericDate(clock.now().Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRejectsForeignIssuerAndAudience(t *testing.T) {
	clock := newClock()
	m := newHSManager(t, clock)

	other, err := NewManager(Config{
		Key:        SymmetricKey{Secret: testSecret()},
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "someone-else",
		Audience:   "portal-api",
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := other.Sign(Claims{Kind: KindAccess, RegisteredClaims: gjwt.RegisteredClaims{Subject: "u"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected issuer mismatch to be malformed, got %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	m := newHSManager(t, newClock())
	for _, in := range []string{"", "abc", "a.b.c", "Bearer x"} {
		if _, err := m.Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", in, err)
		}
	}
}

func TestEd25519AndRSAVariants(t *testing.T) {
	clock := newClock()
	_, edPriv, _ := ed25519.GenerateKey(rand.Reader)
	rsaPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}

	cases := []struct {
		key SigningKey
		alg string
	}{
		{key: AsymmetricKeyPair{Private: edPriv, Public: edPriv.Public()}, alg: "EdDSA"},
		{key: AsymmetricKeyPair{Private: rsaPriv, Public: &rsaPriv.PublicKey}, alg: "RS256"},
	}
	for _, tc := range cases {
		m, err := NewManager(Config{Key: tc.key, AccessTTL: time.Minute, RefreshTTL: time.Hour, Clock: clock.now})
		if err != nil {
			t.Fatalf("%s: new manager: %v", tc.alg, err)
		}
		if m.Algorithm() != tc.alg {
			t.Fatalf("expected %s, got %s", tc.alg, m.Algorithm())
		}
		token, _, err := m.Sign(Claims{Kind: KindRefresh, FamilyID: "fam", RegisteredClaims: gjwt.RegisteredClaims{Subject: "u"}})
		if err != nil {
			t.Fatalf("%s: sign: %v", tc.alg, err)
		}
		claims, err := m.Parse(token)
		if err != nil {
			t.Fatalf("%s: parse: %v", tc.alg, err)
		}
		if claims.Kind != KindRefresh || claims.FamilyID != "fam" {
			t.Fatalf("%s: unexpected claims %+v", tc.alg, claims)
		}
	}
}

func TestInspectAcceptsExpiredButChecksSignature(t *testing.T) {
	clock := newClock()
	m := newHSManager(t, clock)

	signed, issued, err := m.Sign(Claims{Kind: KindRefresh, RegisteredClaims: gjwt.RegisteredClaims{Subject: "u-1"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	clock.advance(8 * 24 * time.Hour)

	claims, err := m.Inspect(signed)
	if err != nil {
		t.Fatalf("inspect expired token: %v", err)
	}
	if claims.ID != issued.ID {
		t.Fatalf("expected jti %s, got %s", issued.ID, claims.ID)
	}

	other, err := NewManager(Config{
		Key:        SymmetricKey{Secret: []byte("ffffffffffffffffffffffffffffffff")},
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Clock:      clock.now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := other.Inspect(signed); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for foreign signature, got %v", err)
	}
}
