package portalauth

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// LoadConfigFromEnv returns [DefaultConfig] overridden by environment
// variables. A .env file in the working directory is loaded first when
// present; variables already set in the environment win over it.
//
// Variable names are prefix followed by the section and field, for example
// with prefix "PORTALAUTH_":
//
//	PORTALAUTH_JWT_SECRET
//	PORTALAUTH_JWT_ACCESS_TTL=15m
//	PORTALAUTH_SESSION_MAX_PER_USER=5
//	PORTALAUTH_SECURITY_IP_DENY_LIST=10.0.0.0/8,192.0.2.7
//	PORTALAUTH_REDIS_ADDR=localhost:6379
//
// The result is not validated; [Builder.Build] does that.
func LoadConfigFromEnv(prefix string) (Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, fmt.Errorf("portalauth: load config from env: %w", err)
	}
	return cfg, nil
}
