package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// Outbox backends.
const (
	OutboxBackendMemory   = "memory"
	OutboxBackendRedis    = "redis"
	OutboxBackendPostgres = "postgres"
)

// Config aggregates runtime configuration for the client and the sandbox backend.
type Config struct {
	App      AppConfig
	API      APIConfig
	Sync     SyncConfig
	Push     PushConfig
	Session  SessionConfig
	Outbox   OutboxConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Sandbox  SandboxConfig
}

// AppConfig identifies the host application and SDK build.
type AppConfig struct {
	Name       string
	Env        string
	SDKVersion string
}

// APIConfig points the client at a backend.
type APIConfig struct {
	BaseURL               string
	APIKey                string
	Channel               string
	RequestTimeoutSeconds int
}

// SyncConfig tunes cache freshness and the typing indicator.
type SyncConfig struct {
	TypingTimeoutSeconds int
	PollSchedule         string
}

// PushConfig describes how owned push payloads are recognised.
type PushConfig struct {
	Namespace string
}

// SessionConfig selects where the session record and branding cache live.
type SessionConfig struct {
	Store      string
	SQLitePath string
}

// OutboxConfig controls offline message replay.
type OutboxConfig struct {
	Backend            string
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int
	RedisKeyPrefix     string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// SandboxConfig configures the in-memory reference backend.
type SandboxConfig struct {
	Host               string
	Port               string
	APIKey             string
	JWTSecret          string
	TokenTTLMinutes    int
	BcryptCost         int
	DefaultAssignee    string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	rateLimit, err := strconv.ParseFloat(getEnv("SANDBOX_RATE_LIMIT_PER_SECOND", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SANDBOX_RATE_LIMIT_PER_SECOND: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:       getEnv("APP_NAME", "support-client"),
			Env:        getEnv("APP_ENV", "development"),
			SDKVersion: getEnv("SUPPORT_SDK_VERSION", "dev"),
		},
		API: APIConfig{
			BaseURL:               strings.TrimRight(getEnv("SUPPORT_API_BASE_URL", "http://127.0.0.1:8080"), "/"),
			APIKey:                os.Getenv("SUPPORT_API_KEY"),
			Channel:               getEnv("SUPPORT_CHANNEL", "cli"),
			RequestTimeoutSeconds: getEnvAsInt("SUPPORT_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Sync: SyncConfig{
			TypingTimeoutSeconds: getEnvAsInt("SUPPORT_TYPING_TIMEOUT_SECONDS", 60),
			PollSchedule:         getEnv("SUPPORT_POLL_SCHEDULE", "@every 30s"),
		},
		Push: PushConfig{
			Namespace: getEnv("SUPPORT_PUSH_NAMESPACE", "support"),
		},
		Session: SessionConfig{
			Store:      getEnv("SUPPORT_SESSION_STORE", SessionStoreMemory),
			SQLitePath: getEnv("SUPPORT_SQLITE_PATH", "support-session.db"),
		},
		Outbox: OutboxConfig{
			Backend:            getEnv("SUPPORT_OUTBOX_BACKEND", OutboxBackendMemory),
			MaxAttempts:        getEnvAsInt("SUPPORT_OUTBOX_MAX_ATTEMPTS", 8),
			BaseBackoffSeconds: getEnvAsInt("SUPPORT_OUTBOX_BASE_BACKOFF_SECONDS", 2),
			MaxBackoffSeconds:  getEnvAsInt("SUPPORT_OUTBOX_MAX_BACKOFF_SECONDS", 300),
			RedisKeyPrefix:     getEnv("SUPPORT_OUTBOX_REDIS_PREFIX", "support:outbox"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Sandbox: SandboxConfig{
			Host:               getEnv("SANDBOX_HOST", "0.0.0.0"),
			Port:               getEnv("SANDBOX_PORT", "8080"),
			APIKey:             getEnv("SANDBOX_API_KEY", "sandbox-key"),
			JWTSecret:          getEnv("SANDBOX_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes:    getEnvAsInt("SANDBOX_TOKEN_TTL_MINUTES", 24*60),
			BcryptCost:         getEnvAsInt("SANDBOX_BCRYPT_COST", 10),
			DefaultAssignee:    getEnv("SANDBOX_DEFAULT_ASSIGNEE", "human_agent"),
			RateLimitPerSecond: rateLimit,
			RateLimitBurst:     getEnvAsInt("SANDBOX_RATE_LIMIT_BURST", 40),
		},
	}

	return cfg, nil
}

// Validate checks the settings the client cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("SUPPORT_API_BASE_URL is required")
	}
	if strings.TrimSpace(c.API.APIKey) == "" {
		return errors.New("SUPPORT_API_KEY is required")
	}
	switch c.Session.Store {
	case SessionStoreMemory, SessionStoreSQLite:
	default:
		return fmt.Errorf("unknown SUPPORT_SESSION_STORE %q", c.Session.Store)
	}
	switch c.Outbox.Backend {
	case OutboxBackendMemory, OutboxBackendRedis, OutboxBackendPostgres:
	default:
		return fmt.Errorf("unknown SUPPORT_OUTBOX_BACKEND %q", c.Outbox.Backend)
	}
	if c.Outbox.Backend == OutboxBackendPostgres && c.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required for the postgres outbox")
	}
	return nil
}

// RequestTimeout returns the configured per-request transport timeout.
func (a APIConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// TypingTimeout bounds how long the typing indicator may stay visible without a reply.
func (s SyncConfig) TypingTimeout() time.Duration {
	if s.TypingTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.TypingTimeoutSeconds) * time.Second
}

// BaseBackoff returns the first retry delay.
func (o OutboxConfig) BaseBackoff() time.Duration {
	if o.BaseBackoffSeconds <= 0 {
		return time.Second
	}
	return time.Duration(o.BaseBackoffSeconds) * time.Second
}

// MaxBackoff caps the retry delay.
func (o OutboxConfig) MaxBackoff() time.Duration {
	if o.MaxBackoffSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(o.MaxBackoffSeconds) * time.Second
}

// Addr returns the sandbox HTTP bind address.
func (s SandboxConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
