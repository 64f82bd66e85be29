package app

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/transitra/transitra/pkg/jwtx"
)

type Config struct {
	AccessSecret  string // Required: HS256 secret for access tokens
	RefreshSecret string // Required: HS256 secret for refresh tokens, must differ from AccessSecret
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	SSOPublicKeyFile string // Optional: PEM file with the identity provider's RSA public key
	MFAIssuer        string // Issuer name shown in authenticator apps

	// BootstrapEmail/BootstrapPassword seed an initial admin account when
	// the user table is empty. Ignored once any user exists.
	BootstrapEmail    string
	BootstrapPassword string

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)
	PepperFile   string // Path to the password-hashing pepper file (default: ./pepper)
	RedisURL     string // Optional: shared login-throttle backend for multi-instance deployments

	MaxSessions int // Concurrent sessions per user before eviction

	AuthBypass bool // Dev only: skip token verification and use a fixed identity

	Env                  string // Environment (dev, staging, prod) (default: dev)
	LogLevel             string // Log level (debug, info, warn, error) (default: info)
	LogFormat            string // Log format (json, text) (default: json)
	Port                 int    // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

func LoadConfig() Config {
	return Config{
		AccessSecret:  os.Getenv("AUTH_JWT_SECRET"),
		RefreshSecret: os.Getenv("AUTH_JWT_REFRESH_SECRET"),
		AccessTTL:     getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		SSOPublicKeyFile: os.Getenv("AUTH_SSO_PUBLIC_KEY_FILE"),
		MFAIssuer:        getEnvOrDefault("AUTH_MFA_ISSUER", "Transitra"),

		BootstrapEmail:    os.Getenv("AUTH_BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		RedisURL:     os.Getenv("AUTH_REDIS_URL"),

		MaxSessions: getEnvIntOrDefault("AUTH_MAX_SESSIONS", 5),

		AuthBypass: getEnvOrDefault("AUTH_BYPASS", "false") == "true",

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
	}
}

// Validate fails fast on configuration the service must never run with.
// Weak or placeholder JWT secrets are a startup error, not a warning.
func (cfg Config) Validate() error {
	if err := jwtx.ValidateSecret("AUTH_JWT_SECRET", cfg.AccessSecret); err != nil {
		return err
	}
	if err := jwtx.ValidateSecret("AUTH_JWT_REFRESH_SECRET", cfg.RefreshSecret); err != nil {
		return err
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return fmt.Errorf("AUTH_JWT_REFRESH_SECRET must differ from AUTH_JWT_SECRET")
	}
	if cfg.AuthBypass && cfg.Env == "prod" {
		return fmt.Errorf("AUTH_BYPASS must not be enabled in prod")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are taken as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
