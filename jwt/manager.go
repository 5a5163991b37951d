package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	// ErrMalformed covers undecodable tokens and every signature, issuer,
	// audience, or algorithm mismatch.
	ErrMalformed = errors.New("token malformed")
	// ErrExpired is returned once now is at or past the expiry claim.
	ErrExpired = errors.New("token expired")
)

// Config holds issuance and verification settings for a [Manager].
type Config struct {
	Key        SigningKey
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	KeyID      string
	Clock      func() time.Time
}

// Claims is the claim bundle carried by both token kinds. Refresh tokens
// additionally carry FamilyID and RotationCount.
type Claims struct {
	Kind          Kind     `json:"typ"`
	Username      string   `json:"usr,omitempty"`
	Email         string   `json:"eml,omitempty"`
	Role          string   `json:"role,omitempty"`
	Permissions   []string `json:"perms,omitempty"`
	Scopes        []string `json:"scp,omitempty"`
	DeviceID      string   `json:"did,omitempty"`
	SessionID     string   `json:"sid,omitempty"`
	FamilyID      string   `json:"fam,omitempty"`
	RotationCount int      `json:"rot,omitempty"`
	jwt.RegisteredClaims
}

// ExpiresAtTime returns the expiry as a time.Time, or the zero time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAtTime returns the issued-at as a time.Time, or the zero time.
func (c *Claims) IssuedAtTime() time.Time {
	if c == nil || c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Manager signs and verifies tokens with a fixed [SigningKey].
//
// A Manager is immutable after [NewManager] and safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// NewManager validates cfg and returns a ready Manager. Missing or
// mismatched key material is reported here and never at signing time.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Key == nil {
		return nil, errors.New("signing key required")
	}
	if err := cfg.Key.validate(); err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL configuration")
	}
	if cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid refresh TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Manager{config: cfg, method: cfg.Key.method()}, nil
}

// Algorithm reports the JWS algorithm selected by the key variant.
func (m *Manager) Algorithm() string {
	return m.method.Alg()
}

// TTL returns the configured lifetime for kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Sign mints a token from claims. Issuer, audience, issued-at, expiry and a
// fresh jti are always assigned here, overriding whatever the caller set.
// The returned Claims reflect exactly what was signed.
func (m *Manager) Sign(claims Claims) (string, *Claims, error) {
	if claims.Kind != KindAccess && claims.Kind != KindRefresh {
		return "", nil, fmt.Errorf("unknown token kind %q", claims.Kind)
	}
	if claims.Subject == "" {
		return "", nil, errors.New("token subject required")
	}

	now := m.config.Clock()
	claims.ID = uuid.NewString()
	claims.Issuer = m.config.Issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = nil
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.TTL(claims.Kind)))
	claims.Audience = nil
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, &claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signed, err := token.SignedString(m.config.Key.signKey())
	if err != nil {
		return "", nil, err
	}

	return signed, &claims, nil
}

// Decode reads claims without checking the signature. It is the cheap first
// step of verification: the jti it yields drives the blacklist lookup.
func (m *Manager) Decode(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing jti or exp", ErrMalformed)
	}

	return claims, nil
}

// Expired reports whether claims are at or past their expiry, honoring the
// configured leeway.
func (m *Manager) Expired(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return true
	}
	return !m.config.Clock().Before(claims.ExpiresAt.Time.Add(m.config.Leeway))
}

// Parse fully verifies tokenStr: algorithm, signature, issuer, audience,
// expiry and issued-at. Failures map to [ErrExpired] or [ErrMalformed].
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithTimeFunc(m.config.Clock),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if m.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return m.config.Key.verifyKey(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrMalformed)
	}

	return claims, nil
}

// Inspect verifies algorithm and signature but skips every time-based and
// issuer/audience check. It lets callers revoke a token that has already
// expired without trusting unsigned input.
func (m *Manager) Inspect(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Key.verifyKey(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing jti or exp", ErrMalformed)
	}
	return claims, nil
}
