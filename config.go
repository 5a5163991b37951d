package portalauth

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/password"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override what you need, or load it with [LoadConfigFromEnv].
type Config struct {
	JWT       JWTConfig       `envPrefix:"JWT_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	Blacklist BlacklistConfig `envPrefix:"BLACKLIST_"`
	Lockout   LockoutConfig   `envPrefix:"LOCKOUT_"`
	Risk      RiskConfig      `envPrefix:"RISK_"`
	Password  PasswordConfig  `envPrefix:"PASSWORD_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_"`
	Security  SecurityConfig  `envPrefix:"SECURITY_"`
	Directory DirectoryConfig `envPrefix:"DIRECTORY_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects token lifetimes and signing material. Secret selects
// HS256; PrivateKeyFile (PEM, RSA or Ed25519) selects the asymmetric variant.
// A key passed to [Builder.WithSigningKey] takes precedence over both.
type JWTConfig struct {
	AccessTTL      time.Duration `env:"ACCESS_TTL"`
	RefreshTTL     time.Duration `env:"REFRESH_TTL"`
	Issuer         string        `env:"ISSUER"`
	Audience       string        `env:"AUDIENCE"`
	Leeway         time.Duration `env:"LEEWAY"`
	KeyID          string        `env:"KEY_ID"`
	Secret         string        `env:"SECRET"`
	PrivateKeyFile string        `env:"PRIVATE_KEY_FILE"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the session ledger.
type SessionConfig struct {
	MaxSessionsPerUser   int           `env:"MAX_PER_USER"`
	IdleTimeout          time.Duration `env:"IDLE_TIMEOUT"`
	RememberMeDuration   time.Duration `env:"REMEMBER_ME_DURATION"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL"`
	TouchPersistInterval time.Duration `env:"TOUCH_PERSIST_INTERVAL"`
}

// RefreshConfig controls refresh-token rotation. A family whose rotation
// count exceeds RotationCeiling is revoked as a whole. With ReuseDetection a
// replayed, already rotated token revokes its family too.
type RefreshConfig struct {
	Rotation        bool          `env:"ROTATION"`
	ReuseDetection  bool          `env:"REUSE_DETECTION"`
	RotationCeiling int           `env:"ROTATION_CEILING"`
	FamilyRetention time.Duration `env:"FAMILY_RETENTION"`
}

// BlacklistConfig sets how long an already expired token stays blacklisted.
type BlacklistConfig struct {
	Retention time.Duration `env:"RETENTION"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// LockoutConfig locks an identifier after MaxAttempts consecutive failures.
type LockoutConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	Duration    time.Duration `env:"DURATION"`
}

// RiskConfig weights the suspicious-activity score. The unusual-hour check
// only applies once HourWarmup successful logins exist.
type RiskConfig struct {
	Enabled           bool   `env:"ENABLED"`
	NewLocationWeight int    `env:"NEW_LOCATION_WEIGHT"`
	NewDeviceWeight   int    `env:"NEW_DEVICE_WEIGHT"`
	UnusualHourWeight int    `env:"UNUSUAL_HOUR_WEIGHT"`
	MaxScore          int    `env:"MAX_SCORE"`
	HourWarmup        int    `env:"HOUR_WARMUP"`
	HourWindow        int    `env:"HOUR_WINDOW"`
	TimeZone          string `env:"TIME_ZONE"`
}

// PasswordConfig selects the hasher and the policy enforced by
// [Engine.ValidatePassword].
type PasswordConfig struct {
	Hasher      string `env:"HASHER"`
	BcryptCost  int    `env:"BCRYPT_COST"`
	Memory      uint32 `env:"ARGON2_MEMORY"`
	Time        uint32 `env:"ARGON2_TIME"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM"`
	SaltLength  uint32 `env:"ARGON2_SALT_LENGTH"`
	KeyLength   uint32 `env:"ARGON2_KEY_LENGTH"`
	HistorySize int    `env:"HISTORY_SIZE"`

	MinLength      int  `env:"MIN_LENGTH"`
	MaxLength      int  `env:"MAX_LENGTH"`
	RequireUpper   bool `env:"REQUIRE_UPPER"`
	RequireLower   bool `env:"REQUIRE_LOWER"`
	RequireDigit   bool `env:"REQUIRE_DIGIT"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL"`
	RejectCommon   bool `env:"REJECT_COMMON"`
	RejectUserData bool `env:"REJECT_USER_DATA"`
}

// RateLimitConfig sizes the token buckets of each category.
type RateLimitConfig struct {
	Enabled       bool          `env:"ENABLED"`
	LoginPoints   int           `env:"LOGIN_POINTS"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW"`
	APIPoints     int           `env:"API_POINTS"`
	APIWindow     time.Duration `env:"API_WINDOW"`
	GlobalPoints  int           `env:"GLOBAL_POINTS"`
	GlobalWindow  time.Duration `env:"GLOBAL_WINDOW"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"`
}

// SecurityConfig holds IP admission lists and the retention of security
// history. List entries are single addresses or CIDR prefixes; a non-empty
// allow list admits nothing else.
type SecurityConfig struct {
	IPAllowList      []string      `env:"IP_ALLOW_LIST" envSeparator:","`
	IPDenyList       []string      `env:"IP_DENY_LIST" envSeparator:","`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION"`
	EventRetention   time.Duration `env:"EVENT_RETENTION"`
	MaxLoginHistory  int           `env:"MAX_LOGIN_HISTORY"`
	MaxEventsPerUser int           `env:"MAX_EVENTS_PER_USER"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL"`
}

// DirectoryConfig bounds every identity directory call.
type DirectoryConfig struct {
	Timeout time.Duration `env:"TIMEOUT"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig toggles in-process counters and the verify latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

// LoggingConfig builds the engine logger when none is passed to
// [Builder.WithLogger]. Disabled logging uses a no-op logger.
type LoggingConfig struct {
	Enabled    bool   `env:"ENABLED"`
	Level      string `env:"LEVEL"`
	Format     string `env:"FORMAT"`
	OutputPath string `env:"OUTPUT"`
}

// RedisConfig is used when no client is passed to [Builder.WithRedis].
// An empty Addr keeps everything in memory.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB"`
	Prefix   string `env:"PREFIX"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the settings used when a field is not overridden.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "portalauth",
			Audience:   "portal",
			Leeway:     0,
		},
		Session: SessionConfig{
			MaxSessionsPerUser:   5,
			IdleTimeout:          30 * time.Minute,
			RememberMeDuration:   30 * 24 * time.Hour,
			SweepInterval:        time.Minute,
			TouchPersistInterval: time.Minute,
		},
		Refresh: RefreshConfig{
			Rotation:        true,
			ReuseDetection:  false,
			RotationCeiling: 10,
			FamilyRetention: 24 * time.Hour,
		},
		Blacklist: BlacklistConfig{
			Retention: 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		Risk: RiskConfig{
			Enabled:           true,
			NewLocationWeight: 30,
			NewDeviceWeight:   20,
			UnusualHourWeight: 25,
			MaxScore:          75,
			HourWarmup:        10,
			HourWindow:        50,
			TimeZone:          "UTC",
		},
		Password: PasswordConfig{
			Hasher:         "argon2",
			BcryptCost:     12,
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			HistorySize:    5,
			MinLength:      8,
			MaxLength:      128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
			RejectCommon:   true,
			RejectUserData: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			LoginPoints:   20,
			LoginWindow:   15 * time.Minute,
			APIPoints:     100,
			APIWindow:     time.Minute,
			GlobalPoints:  1000,
			GlobalWindow:  time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Security: SecurityConfig{
			HistoryRetention: 7 * 24 * time.Hour,
			EventRetention:   30 * 24 * time.Hour,
			MaxLoginHistory:  10000,
			MaxEventsPerUser: 500,
			SweepInterval:    time.Hour,
		},
		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			Format:     "json",
			OutputPath: "stderr",
		},
		Redis: RedisConfig{
			Prefix: "portalauth",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Security.IPAllowList = append([]string(nil), cfg.Security.IPAllowList...)
	out.Security.IPDenyList = append([]string(nil), cfg.Security.IPDenyList...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field as a [*ConfigError]. Signing
// material is checked by [Builder.Build].
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT.AccessTTL", "must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configError("JWT.RefreshTTL", "must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return configError("JWT.RefreshTTL", "must not be shorter than the access TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return configError("JWT.Leeway", "must be between 0 and 2m")
	}

	// Session
	if c.Session.MaxSessionsPerUser < 0 {
		return configError("Session.MaxSessionsPerUser", "must be >= 0")
	}
	if c.Session.IdleTimeout < 0 || c.Session.RememberMeDuration < 0 {
		return configError("Session.IdleTimeout", "timeouts must be >= 0")
	}
	if c.Session.SweepInterval < 0 {
		return configError("Session.SweepInterval", "must be >= 0")
	}

	// Refresh
	if c.Refresh.RotationCeiling < 0 {
		return configError("Refresh.RotationCeiling", "must be >= 0")
	}
	if c.Refresh.FamilyRetention <= 0 {
		return configError("Refresh.FamilyRetention", "must be > 0")
	}
	if c.Blacklist.Retention <= 0 {
		return configError("Blacklist.Retention", "must be > 0")
	}

	// Lockout and risk
	if c.Lockout.MaxAttempts <= 0 {
		return configError("Lockout.MaxAttempts", "must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return configError("Lockout.Duration", "must be > 0")
	}
	if c.Risk.NewLocationWeight < 0 || c.Risk.NewDeviceWeight < 0 || c.Risk.UnusualHourWeight < 0 {
		return configError("Risk", "weights must be >= 0")
	}
	if c.Risk.MaxScore <= 0 {
		return configError("Risk.MaxScore", "must be > 0")
	}
	if c.Risk.HourWarmup <= 0 || c.Risk.HourWindow < c.Risk.HourWarmup {
		return configError("Risk.HourWindow", "must be >= the warm-up and the warm-up > 0")
	}
	if _, err := time.LoadLocation(c.Risk.TimeZone); err != nil {
		return configError("Risk.TimeZone", err.Error())
	}

	// Password
	switch c.Password.Hasher {
	case "argon2":
		if err := c.argon2Params().Validate(); err != nil {
			return configError("Password", err.Error())
		}
	case "bcrypt":
	default:
		return configError("Password.Hasher", fmt.Sprintf("unknown hasher %q", c.Password.Hasher))
	}
	if c.Password.MinLength <= 0 || c.Password.MaxLength < c.Password.MinLength {
		return configError("Password.MaxLength", "lengths must satisfy 0 < min <= max")
	}
	if c.Password.HistorySize < 0 {
		return configError("Password.HistorySize", "must be >= 0")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		for cat, rule := range c.rateRules() {
			if rule.Points <= 0 || rule.Duration <= 0 {
				return configError("RateLimit."+string(cat), "points and window must be > 0")
			}
		}
	}

	// Security
	if _, err := parseIPList(c.Security.IPAllowList); err != nil {
		return configError("Security.IPAllowList", err.Error())
	}
	if _, err := parseIPList(c.Security.IPDenyList); err != nil {
		return configError("Security.IPDenyList", err.Error())
	}
	if c.Directory.Timeout <= 0 {
		return configError("Directory.Timeout", "must be > 0")
	}

	// Observability
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit.BufferSize", "must be > 0 when audit is enabled")
	}
	if c.Logging.Enabled {
		if _, err := parseLogLevel(c.Logging.Level); err != nil {
			return configError("Logging.Level", err.Error())
		}
		switch c.Logging.Format {
		case "json", "console":
		default:
			return configError("Logging.Format", "must be json or console")
		}
	}

	return nil
}

func (c *Config) argon2Params() password.Argon2Params {
	params := password.DefaultArgon2Params()
	params.Memory = c.Password.Memory
	params.Time = c.Password.Time
	params.Parallelism = c.Password.Parallelism
	params.SaltLength = c.Password.SaltLength
	params.KeyLength = c.Password.KeyLength
	return params
}

func (c *Config) passwordPolicy() password.Policy {
	return password.Policy{
		MinLength:      c.Password.MinLength,
		MaxLength:      c.Password.MaxLength,
		RequireUpper:   c.Password.RequireUpper,
		RequireLower:   c.Password.RequireLower,
		RequireDigit:   c.Password.RequireDigit,
		RequireSpecial: c.Password.RequireSpecial,
		RejectCommon:   c.Password.RejectCommon,
		RejectUserData: c.Password.RejectUserData,
	}
}

func (c *Config) rateRules() map[rate.Category]rate.Rule {
	return map[rate.Category]rate.Rule{
		rate.CategoryLogin:  {Points: c.RateLimit.LoginPoints, Duration: c.RateLimit.LoginWindow},
		rate.CategoryAPI:    {Points: c.RateLimit.APIPoints, Duration: c.RateLimit.APIWindow},
		rate.CategoryGlobal: {Points: c.RateLimit.GlobalPoints, Duration: c.RateLimit.GlobalWindow},
	}
}

// parseIPList accepts single addresses and CIDR prefixes. Addresses become
// full-length prefixes.
func parseIPList(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
