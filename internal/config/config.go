// Package config provides configuration management for the pokedex service.
// It loads settings from environment variables (optionally seeded from a .env
// file) with sensible defaults and validates them before the service starts.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FILE: Write logs to this file instead of stdout
//   - LOG_FORMAT: "console" or "json" (default: console)
//
// Store Configuration:
//   - STORE_TYPE: "sqlite", "postgres", "redis" or "memory" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./pokedex.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL connection
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - REDIS_KEY_PREFIX: Prefix for every key written to Redis (default: pokedex:)
//   - STORE_CONNECT_TIMEOUT: How long to keep retrying the store at startup (default: 30s)
//
// Upstream:
//   - UPSTREAM_BASE_URL: PokeAPI base url (default: https://pokeapi.co/api/v2)
//   - UPSTREAM_TIMEOUT: Per-request timeout (default: 10s)
//   - UPSTREAM_RPS: Outbound requests per second (default: 20)
//   - UPSTREAM_BURST: Outbound burst size (default: 20)
//
// Cache Behaviour:
//   - HYDRATE_ON_START: Hydrate from the upstream index at startup (default: true)
//   - HYDRATE_CONCURRENCY: Records fetched per hydration batch (default: 50)
//   - HYDRATE_DELAY: Pause between hydration batches (default: 100ms)
//   - SWEEP_SCHEDULE: Cron spec for the expiry sweeper (default: @every 10m)
//   - SWEEP_BATCH_SIZE: Expired records refreshed per sweep (default: 5)
//   - TTL_MIN, TTL_MAX: Bounds for per-record TTL jitter (default: 12h, 168h)
//
// Rate Limiting:
//   - RATE_LIMIT_ENABLED: Limit inbound API requests per client IP (default: true)
//   - RATE_LIMIT_RPS: Requests per second per client (default: 10)
//   - RATE_LIMIT_BURST: Burst size per client (default: 20)
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration values for the pokedex service.
type Config struct {
	// Application settings
	Port      string
	LogLevel  string
	LogFile   string
	LogFormat string

	// Store
	StoreType           string
	DatabasePath        string
	PostgresHost        string
	PostgresPort        string
	PostgresDB          string
	PostgresUser        string
	PostgresPassword    string
	PostgresSSLMode     string
	RedisAddress        string
	RedisPassword       string
	RedisDB             int
	RedisPoolSize       int
	RedisKeyPrefix      string
	StoreConnectTimeout time.Duration

	// Upstream
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64
	UpstreamBurst   int

	// Hydration and sweeping
	HydrateOnStart     bool
	HydrateConcurrency int
	HydrateDelay       time.Duration
	SweepSchedule      string
	SweepBatchSize     int
	TTLMin             time.Duration
	TTLMax             time.Duration

	// Inbound rate limiting
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load reads a .env file if present, then builds a Config from the
// environment. Call Validate on the result.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		StoreType:           getEnv("STORE_TYPE", "sqlite"),
		DatabasePath:        getEnv("DATABASE_PATH", "./pokedex.db"),
		PostgresHost:        getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:        getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:          getEnv("POSTGRES_DB", "pokedex"),
		PostgresUser:        getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:    getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:     getEnv("POSTGRES_SSL_MODE", "disable"),
		RedisAddress:        getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getIntEnv("REDIS_DB", 0),
		RedisPoolSize:       getIntEnv("REDIS_POOL_SIZE", 10),
		RedisKeyPrefix:      getEnv("REDIS_KEY_PREFIX", "pokedex:"),
		StoreConnectTimeout: getDurationEnv("STORE_CONNECT_TIMEOUT", 30*time.Second),

		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "https://pokeapi.co/api/v2"),
		UpstreamTimeout: getDurationEnv("UPSTREAM_TIMEOUT", 10*time.Second),
		UpstreamRPS:     getFloatEnv("UPSTREAM_RPS", 20),
		UpstreamBurst:   getIntEnv("UPSTREAM_BURST", 20),

		HydrateOnStart:     getBoolEnv("HYDRATE_ON_START", true),
		HydrateConcurrency: getIntEnv("HYDRATE_CONCURRENCY", 50),
		HydrateDelay:       getDurationEnv("HYDRATE_DELAY", 100*time.Millisecond),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 10m"),
		SweepBatchSize:     getIntEnv("SWEEP_BATCH_SIZE", 5),
		TTLMin:             getDurationEnv("TTL_MIN", 12*time.Hour),
		TTLMax:             getDurationEnv("TTL_MAX", 7*24*time.Hour),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 20),
	}
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts anything strconv.ParseBool does; other values fall back to the default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv parses Go duration strings such as "90s" or "12h".
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// PostgresDSN builds the connection string for the postgres store
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=" + c.PostgresSSLMode,
	}
	return u.String()
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'console' or 'json'")
	}

	switch c.StoreType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	case "redis":
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when using Redis")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_TYPE must be one of 'sqlite', 'postgres', 'redis', 'memory'")
	}

	if c.StoreConnectTimeout <= 0 {
		return fmt.Errorf("STORE_CONNECT_TIMEOUT must be positive")
	}

	if u, err := url.Parse(c.UpstreamBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an absolute URL")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.UpstreamRPS <= 0 {
		return fmt.Errorf("UPSTREAM_RPS must be positive")
	}
	if c.UpstreamBurst < 1 {
		return fmt.Errorf("UPSTREAM_BURST must be at least 1")
	}

	if c.HydrateConcurrency < 1 {
		return fmt.Errorf("HYDRATE_CONCURRENCY must be at least 1")
	}
	if c.HydrateDelay < 0 {
		return fmt.Errorf("HYDRATE_DELAY must not be negative")
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE is invalid: %v", err)
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be at least 1")
	}
	if c.TTLMin <= 0 {
		return fmt.Errorf("TTL_MIN must be positive")
	}
	if c.TTLMax < c.TTLMin {
		return fmt.Errorf("TTL_MAX must not be less than TTL_MIN")
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPS <= 0 {
			return fmt.Errorf("RATE_LIMIT_RPS must be positive")
		}
		if c.RateLimitBurst < 1 {
			return fmt.Errorf("RATE_LIMIT_BURST must be at least 1")
		}
	}

	return nil
}
