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

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	EmailProviderLog = "log"
	EmailProviderSES = "ses"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Email    EmailConfig
	Admin    AdminConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	PasswordIterations int
	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration // 0 disables the idle check
	SessionBackend     string

	RateLimitMaxFailures int
	RateLimitWindow      time.Duration
	RateLimitBackend     string

	ResetTokenTTL   time.Duration
	ResetURLBase    string
	ExposeResetLink bool

	CleanupInterval    time.Duration
	AuditRetentionDays int

	TimingDelayBaseMs   int
	TimingDelayRandomMs int

	CookieSecure bool
	CookieDomain string
}

type RedisConfig struct {
	URL string
}

type EmailConfig struct {
	Provider  string
	AWSRegion string
	From      string
}

// AdminConfig seeds the first administrator. An empty Password makes the
// server generate one and write it next to the binary.
type AdminConfig struct {
	Username string
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "garage"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			PasswordIterations:   getEnvAsInt("PASSWORD_ITERATIONS", 100000),
			SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			SessionBackend:       strings.ToLower(getEnv("SESSION_BACKEND", BackendPostgres)),
			RateLimitMaxFailures: getEnvAsInt("RATE_LIMIT_MAX_FAILURES", 5),
			RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", 5*time.Minute),
			RateLimitBackend:     strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			ResetTokenTTL:        getEnvAsDuration("RESET_TOKEN_TTL", 1*time.Hour),
			ResetURLBase:         getEnv("RESET_URL_BASE", "http://localhost:5173/reset-password"),
			ExposeResetLink:      getEnvAsBool("EXPOSE_RESET_LINK", false),
			CleanupInterval:      getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AuditRetentionDays:   getEnvAsInt("AUDIT_RETENTION_DAYS", 90),
			TimingDelayBaseMs:    getEnvAsInt("TIMING_DELAY_BASE_MS", 500),
			TimingDelayRandomMs:  getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			CookieSecure:         getEnvAsBool("COOKIE_SECURE", env == "production"),
			CookieDomain:         getEnv("COOKIE_DOMAIN", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Email: EmailConfig{
			Provider:  strings.ToLower(getEnv("EMAIL_PROVIDER", EmailProviderLog)),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			From:      getEnv("EMAIL_FROM", "no-reply@garage.local"),
		},
		Admin: AdminConfig{
			Username: strings.ToLower(getEnv("ADMIN_USERNAME", "admin")),
			Email:    strings.ToLower(getEnv("ADMIN_EMAIL", "admin@garage.local")),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects missing required settings and combinations that are unsafe
// for the configured environment.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Password == "" {
		errs = append(errs, fmt.Errorf("DB_PASSWORD is required"))
	}

	if c.Auth.PasswordIterations < 1000 {
		errs = append(errs, fmt.Errorf("PASSWORD_ITERATIONS must be at least 1000 (got %d)", c.Auth.PasswordIterations))
	}
	if c.Server.Env == "production" && c.Auth.PasswordIterations < 100000 {
		errs = append(errs, fmt.Errorf("PASSWORD_ITERATIONS must be at least 100000 in production"))
	}

	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_TTL must be positive"))
	}
	if c.Auth.SessionIdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT cannot be negative"))
	}
	if c.Auth.RateLimitMaxFailures < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_FAILURES must be at least 1"))
	}
	if c.Auth.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.Auth.ResetTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("RESET_TOKEN_TTL must be positive"))
	}

	if c.Auth.AuditRetentionDays < 1 {
		errs = append(errs, fmt.Errorf("AUDIT_RETENTION_DAYS must be at least 1"))
	}

	if !oneOf(c.Auth.SessionBackend, BackendPostgres, BackendRedis, BackendMemory) {
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be postgres, redis or memory (got %q)", c.Auth.SessionBackend))
	}
	if !oneOf(c.Auth.RateLimitBackend, BackendMemory, BackendRedis, BackendPostgres) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory, redis or postgres (got %q)", c.Auth.RateLimitBackend))
	}
	if c.UsesRedis() && c.Redis.URL == "" {
		errs = append(errs, fmt.Errorf("REDIS_URL is required when a redis backend is selected"))
	}

	if !oneOf(c.Email.Provider, EmailProviderLog, EmailProviderSES) {
		errs = append(errs, fmt.Errorf("EMAIL_PROVIDER must be log or ses (got %q)", c.Email.Provider))
	}

	if c.Server.Env == "production" && c.Auth.ExposeResetLink {
		errs = append(errs, fmt.Errorf("EXPOSE_RESET_LINK cannot be enabled in production"))
	}

	return errors.Join(errs...)
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Auth.SessionBackend == BackendRedis || c.Auth.RateLimitBackend == BackendRedis
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return []string{}
	}

	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: staff dashboard and customer portal dev servers
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
