package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every runtime knob, loaded once from the environment.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string

	SentryDSN string
	AppEnv    string

	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration

	LoginMaxAttempts int
	LoginLockout     time.Duration

	LoginRateLimitPerMinute int

	JanitorHour int

	CORSAllowedOrigins []string

	AdminUsername string
	AdminPassword string
	CronSecret    string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RunMigrationsOnStartup bool
}

const minJWTSecretBytes = 32

// Load reads the environment. DATABASE_URL and JWT_SECRET are required;
// everything else falls back to a sensible default.
func Load() (*Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(jwtSecret) < minJWTSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretBytes)
	}

	return &Config{
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		Port:        envOrDefault("PORT", "8080"),

		SentryDSN: os.Getenv("SENTRY_DSN"),
		AppEnv:    envOrDefault("APP_ENV", "development"),

		AccessTokenTTL: envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		RefreshTTL:     envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 30),

		LoginMaxAttempts: envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		LoginLockout:     envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),

		LoginRateLimitPerMinute: envIntOrDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 30),

		JanitorHour: envHourOrDefault("JANITOR_HOUR", 2),

		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		AdminUsername: strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		CronSecret:    os.Getenv("CRON_SECRET"),

		DBMaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),

		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),
	}, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// envHourOrDefault accepts 0 through 23; zero is a valid hour, so this
// cannot share envIntOrDefault's positive-only parsing.
func envHourOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 || parsed > 23 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
