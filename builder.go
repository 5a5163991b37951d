package portalauth

import (
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/portalauth/guard"
	"github.com/MrEthical07/portalauth/internal/audit"
	"github.com/MrEthical07/portalauth/internal/metrics"
	"github.com/MrEthical07/portalauth/internal/rate"
	"github.com/MrEthical07/portalauth/jwt"
	"github.com/MrEthical07/portalauth/password"
	"github.com/MrEthical07/portalauth/permission"
	"github.com/MrEthical07/portalauth/session"
)

// Builder assembles an [Engine].
//
// Builder instances are configured during initialization and used once;
// [Builder.Build] refuses a second call.
type Builder struct {
	config Config

	directory  IdentityDirectory
	redis      redis.UniversalClient
	logger     *zap.Logger
	observers  []Observer
	auditSink  AuditSink
	roles      map[string][]string
	hasher     password.Hasher
	clock      func() time.Time
	resolver   guard.LocationResolver
	signingKey jwt.SigningKey

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDirectory sets the identity directory. It is required.
func (b *Builder) WithDirectory(dir IdentityDirectory) *Builder {
	b.directory = dir
	return b
}

// WithRedis makes the session ledger write through to client and moves the
// rate-limit buckets into it. The Engine does not close a client passed here.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger overrides the logger built from Config.Logging.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithObserver registers an observer. Observers are called in registration
// order.
func (b *Builder) WithObserver(o Observer) *Builder {
	if o != nil {
		b.observers = append(b.observers, o)
	}
	return b
}

// WithAuditSink sets the sink behind the async audit dispatcher and enables
// it. Without a sink an enabled dispatcher logs through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithRoles registers default permission sets per role. A token carries the
// role's permissions merged with the user's own.
func (b *Builder) WithRoles(roles map[string][]string) *Builder {
	b.roles = roles
	return b
}

// WithHasher overrides the hasher selected by Config.Password.Hasher.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithClock replaces time.Now for every component. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithLocationResolver overrides the network-prefix location resolver used by
// risk scoring.
func (b *Builder) WithLocationResolver(r guard.LocationResolver) *Builder {
	b.resolver = r
	return b
}

// WithSigningKey sets the signing material, taking precedence over
// Config.JWT.Secret and Config.JWT.PrivateKeyFile.
func (b *Builder) WithSigningKey(key jwt.SigningKey) *Builder {
	b.signingKey = key
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. All errors
// are [*ConfigError]. The returned Engine must be started with
// [Engine.Start] before use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, configError("Builder", "already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, configError("Directory", "identity directory required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// -------- LOGGER --------
	logger := b.logger
	if logger == nil {
		var err error
		if logger, err = newLogger(cfg.Logging); err != nil {
			return nil, configError("Logging", err.Error())
		}
	}

	// -------- SIGNING --------
	key, err := b.resolveSigningKey(cfg.JWT)
	if err != nil {
		return nil, err
	}
	jm, err := jwt.NewManager(jwt.Config{
		Key:        key,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Leeway:     cfg.JWT.Leeway,
		KeyID:      cfg.JWT.KeyID,
		Clock:      clock,
	})
	if err != nil {
		return nil, configError("JWT", err.Error())
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		switch cfg.Password.Hasher {
		case "bcrypt":
			hasher = password.NewBcrypt(cfg.Password.BcryptCost)
		default:
			a, err := password.NewArgon2(cfg.argon2Params())
			if err != nil {
				return nil, configError("Password", err.Error())
			}
			hasher = a
		}
	}

	// -------- ROLES --------
	roles := permission.NewRoles()
	for name, perms := range b.roles {
		if err := roles.Register(name, perms); err != nil {
			return nil, configError("Roles", fmt.Sprintf("%s: %v", name, err))
		}
	}
	roles.Freeze()

	allow, _ := parseIPList(cfg.Security.IPAllowList)
	deny, _ := parseIPList(cfg.Security.IPDenyList)

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		logger:    logger,
		clock:     clock,
		jwt:       jm,
		hasher:    hasher,
		policy:    cfg.passwordPolicy(),
		roles:     roles,
		allow:     allow,
		deny:      deny,
		observers: append([]Observer(nil), b.observers...),
		metrics: metrics.New(metrics.Config{
			Enabled:       cfg.Metrics.Enabled,
			EnableLatency: cfg.Metrics.EnableLatencyHistograms,
		}),
	}

	// -------- REDIS --------
	client := b.redis
	if client == nil && cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		engine.ownedRedis = client
	}

	// -------- SESSION LEDGER --------
	var backend session.Backend
	if client != nil {
		backend = session.NewRedisBackend(client, cfg.Redis.Prefix+":ledger:")
	}
	engine.ledger = session.NewLedger(session.Config{
		MaxSessionsPerUser:   cfg.Session.MaxSessionsPerUser,
		IdleTimeout:          cfg.Session.IdleTimeout,
		RememberMeDuration:   cfg.Session.RememberMeDuration,
		SweepInterval:        cfg.Session.SweepInterval,
		TouchPersistInterval: cfg.Session.TouchPersistInterval,
		Clock:                clock,
		Logger:               logger.Named("ledger"),
		OnRemove:             engine.onSessionRemoved,
	}, backend)

	// -------- ACCOUNT GUARD --------
	loc, _ := time.LoadLocation(cfg.Risk.TimeZone)
	engine.guard = guard.New(guard.Config{
		MaxAttempts:       cfg.Lockout.MaxAttempts,
		LockoutDuration:   cfg.Lockout.Duration,
		NewLocationWeight: cfg.Risk.NewLocationWeight,
		NewDeviceWeight:   cfg.Risk.NewDeviceWeight,
		UnusualHourWeight: cfg.Risk.UnusualHourWeight,
		MaxScore:          riskCeiling(cfg.Risk),
		HourWarmup:        cfg.Risk.HourWarmup,
		HourWindow:        cfg.Risk.HourWindow,
		TimeZone:          loc,
		PasswordHistory:   cfg.Password.HistorySize,
		HistoryRetention:  cfg.Security.HistoryRetention,
		EventRetention:    cfg.Security.EventRetention,
		MaxLoginHistory:   cfg.Security.MaxLoginHistory,
		MaxEventsPerUser:  cfg.Security.MaxEventsPerUser,
		Resolver:          b.resolver,
		Hasher:            hasher,
		Clock:             clock,
		Logger:            logger.Named("guard"),
	})

	// -------- RATE LIMITER --------
	if cfg.RateLimit.Enabled {
		rc := rate.Config{
			Rules:  cfg.rateRules(),
			Prefix: cfg.Redis.Prefix + ":rate:",
			Clock:  clock,
		}
		if client != nil {
			rl, err := rate.NewRedisLimiter(client, rc)
			if err != nil {
				return nil, configError("RateLimit", err.Error())
			}
			engine.limiter = rl
		} else {
			ml, err := rate.NewMemoryLimiter(rc)
			if err != nil {
				return nil, configError("RateLimit", err.Error())
			}
			engine.limiter = ml
			engine.memLimiter = ml
		}
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger.Named("audit"))
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger.Named("audit"),
	}, sink)

	engine.flows = engine.buildFlows()
	b.built = true

	logger.Info("engine built",
		zap.String("alg", jm.Algorithm()),
		zap.Bool("redis", client != nil),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Int("max_sessions", cfg.Session.MaxSessionsPerUser),
	)
	return engine, nil
}

func (b *Builder) resolveSigningKey(cfg JWTConfig) (jwt.SigningKey, error) {
	switch {
	case b.signingKey != nil:
		return b.signingKey, nil
	case cfg.Secret != "":
		return jwt.SymmetricKey{Secret: []byte(cfg.Secret)}, nil
	case cfg.PrivateKeyFile != "":
		raw, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, configError("JWT.PrivateKeyFile", err.Error())
		}
		pair, err := jwt.LoadPrivateKeyPEM(raw)
		if err != nil {
			return nil, configError("JWT.PrivateKeyFile", err.Error())
		}
		return pair, nil
	}
	return nil, configError("JWT", "signing key required")
}

// riskCeiling disables blocking when risk scoring is off by putting the
// threshold out of reach.
func riskCeiling(cfg RiskConfig) int {
	if cfg.Enabled {
		return cfg.MaxScore
	}
	return cfg.NewLocationWeight + cfg.NewDeviceWeight + cfg.UnusualHourWeight + 1
}
