package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Confirm  ConfirmConfig
	Mail     MailConfig
	Outbox   OutboxConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
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

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// ConfirmConfig defines the confirmation-link capability tokens.
type ConfirmConfig struct {
	Secret      string
	BaseURL     string
	MaxAgeHours int
	SuccessURL  string
	FailureURL  string
}

// MailConfig holds the SMTP transport settings. An empty host switches the
// worker to a log-only transport.
type MailConfig struct {
	SMTPHost string
	SMTPPort string
	Username string
	Password string
	From     string
}

// OutboxConfig controls the notification worker pool.
type OutboxConfig struct {
	Workers          int
	BatchSize        int
	PollIntervalSecs int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
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
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Confirm: ConfirmConfig{
			Secret:      getEnv("CONFIRM_SECRET", "dev-confirm-secret"),
			BaseURL:     getEnv("CONFIRM_BASE_URL", "http://localhost:8080"),
			MaxAgeHours: getEnvAsInt("CONFIRM_MAX_AGE_HOURS", 7*24),
			SuccessURL:  getEnv("CONFIRM_SUCCESS_URL", "/confirm/thanks"),
			FailureURL:  getEnv("CONFIRM_FAILURE_URL", "/confirm/sorry"),
		},
		Mail: MailConfig{
			SMTPHost: os.Getenv("SMTP_HOST"),
			SMTPPort: getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("MAIL_FROM", "support@example.com"),
		},
		Outbox: OutboxConfig{
			Workers:          getEnvAsInt("OUTBOX_WORKERS", 2),
			BatchSize:        getEnvAsInt("OUTBOX_BATCH_SIZE", 20),
			PollIntervalSecs: getEnvAsInt("OUTBOX_POLL_INTERVAL_SECONDS", 10),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// MaxAge returns the confirmation token validity window.
func (c ConfirmConfig) MaxAge() time.Duration {
	if c.MaxAgeHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// PollInterval returns the worker sleep between claim batches.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(o.PollIntervalSecs) * time.Second
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
