// Package config loads application configuration from the environment and
// from the YAML declarations of AI providers and aggregation feeds.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int      `env:"SERVER_PORT,default=5000"`
	ShutdownTimeout int      `env:"SERVER_SHUTDOWN_TIMEOUT_SECONDS,default=10"`
	AllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS,default=*"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	Output string `env:"LOG_OUTPUT,default=stdout"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

// DatabaseConfig holds the persistent store connection. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL"`
}

// CreditsConfig controls metering of paid AI features.
type CreditsConfig struct {
	AICost int `env:"AI_COST,default=100"`
}

// EngagementConfig controls daily check-in rewards.
type EngagementConfig struct {
	CoinReward int `env:"CHECKIN_COIN_REWARD,default=300"`
	ExpReward  int `env:"CHECKIN_EXP_REWARD,default=200"`
}

// RateLimitConfig controls the per-user limiter on paid endpoints.
type RateLimitConfig struct {
	RequestsPerSecond int `env:"RATE_LIMIT_RPS,default=5"`
	Burst             int `env:"RATE_LIMIT_BURST,default=10"`
}

// CacheConfig controls the aggregation cache sweep.
type CacheConfig struct {
	SweepSchedule string `env:"CACHE_SWEEP_SCHEDULE,default=@every 10m"`
	// SweepAfterTTLs is the number of TTL periods an entry may sit stale
	// before the sweep removes it.
	SweepAfterTTLs int `env:"CACHE_SWEEP_AFTER_TTLS,default=6"`
}

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Credits    CreditsConfig
	Engagement EngagementConfig
	RateLimit  RateLimitConfig
	Cache      CacheConfig

	ProvidersFile string `env:"AI_PROVIDERS_FILE,default=config/providers.yaml"`
	FeedsFile     string `env:"FEEDS_FILE,default=config/feeds.yaml"`
}

// Load reads .env (when present) and decodes the configuration from the
// environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}
