// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	// SeedAdmin makes the binary create or promote the configured admin account and exit
	SeedAdmin = pflag.Bool("seed-admin", false, "Creates the admin account from admin.email and admin.password, then exits")

	validLogLevels      = []string{"debug", "info", "warn", "error", "fatal"}
	validDrivers        = []string{"sqlite", "postgres"}
	validLimiterBackend = []string{"memory", "redis"}
)

var ErrNoJWTSecret = errors.New("no jwt secret set")

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	// A .env file is optional, real environment variables always win
	_ = godotenv.Load()

	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	Defaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: config.toml not found, using defaults and environment variables only")
	}

	err := Validate()
	if errors.Is(err, ErrNoJWTSecret) {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	return err
}

// Defaults binds environment variables and sets every default value. It's
// separate from Setup so tests can get a complete config without a file
func Defaults() {
	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "APP_LOG_LEVEL")

	v.BindEnv("host.port", "PORT", "HOST_PORT")
	v.BindEnv("host.cors_origins", "FRONTEND_URL", "HOST_CORS_ORIGINS")
	v.BindEnv("host.trusted_proxies", "HOST_TRUSTED_PROXIES")

	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.dsn", "DATABASE_URL", "DATABASE_DSN")

	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.ttl", "JWT_TTL")

	v.BindEnv("generator.api_key", "GROQ_API_KEY", "GENERATOR_API_KEY")
	v.BindEnv("generator.base_url", "GENERATOR_BASE_URL")
	v.BindEnv("generator.model", "GENERATOR_MODEL")
	v.BindEnv("generator.timeout", "GENERATOR_TIMEOUT")
	v.BindEnv("generator.requests_per_minute", "GENERATOR_RPM")

	v.BindEnv("security.rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("security.rate_limit.backend", "RATE_LIMIT_BACKEND")

	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("admin.email", "ADMIN_EMAIL")
	v.BindEnv("admin.password", "ADMIN_PASSWORD")

	v.BindEnv("sentry.dsn", "SENTRY_DSN")
	v.BindEnv("sentry.environment", "APP_ENV")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 5000)
	v.SetDefault("host.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("host.trusted_proxies", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "database.db")

	v.SetDefault("jwt.ttl", "720h")

	v.SetDefault("generator.base_url", "https://api.groq.com/openai/v1/chat/completions")
	v.SetDefault("generator.model", "llama-3.3-70b-versatile")
	v.SetDefault("generator.temperature", 0.5)
	v.SetDefault("generator.max_tokens", 1024)
	v.SetDefault("generator.timeout", "30s")
	v.SetDefault("generator.requests_per_minute", 0)

	v.SetDefault("quota.guest_daily", 5)
	v.SetDefault("quota.free_daily", 50)
	v.SetDefault("quota.free_language", "python")

	v.SetDefault("security.rate_limit.requests", 5)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.rate_limit.backend", "memory")
	v.SetDefault("security.max_body_size", 1<<20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("admin.email", "admin@docstring.io")

	v.SetDefault("cleanup.interval", "24h")
	v.SetDefault("cleanup.failure_retention", "720h")
	v.SetDefault("cleanup.guest_retention", "2160h")

	v.SetDefault("sentry.environment", "development")
}

// Validate checks the loaded values. It returns ErrNoJWTSecret separately from
// the other errors so the caller can print a fresh secret
func Validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 || v.GetInt("host.port") > 65535 {
		return errors.New("invalid port provided")
	}

	if !slices.Contains(validDrivers, v.GetString("database.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("database.driver") == "postgres" && v.GetString("database.dsn") == "" {
		return errors.New("database.dsn is required for postgres")
	}

	if v.GetString("jwt.secret") == "" {
		return ErrNoJWTSecret
	}

	if v.GetDuration("jwt.ttl") <= 0 {
		return errors.New("jwt.ttl must be a positive duration")
	}

	if v.GetDuration("generator.timeout") <= 0 {
		return errors.New("generator.timeout must be a positive duration")
	}

	if v.GetInt("generator.max_tokens") <= 0 {
		return errors.New("generator.max_tokens must be bigger than 0")
	}

	if v.GetInt("quota.guest_daily") <= 0 || v.GetInt("quota.free_daily") <= 0 {
		return errors.New("daily quotas must be bigger than 0")
	}

	if v.GetString("quota.free_language") == "" {
		return errors.New("quota.free_language can't be empty")
	}

	if v.GetInt("security.rate_limit.requests") <= 0 {
		return errors.New("security.rate_limit.requests must be bigger than 0")
	}

	if v.GetDuration("security.rate_limit.window") <= 0 {
		return errors.New("security.rate_limit.window must be a positive duration")
	}

	if !slices.Contains(validLimiterBackend, v.GetString("security.rate_limit.backend")) {
		return errors.New("invalid rate limiter backend provided")
	}

	if v.GetInt64("security.max_body_size") <= 0 {
		return errors.New("security.max_body_size must be bigger than 0")
	}

	if v.GetDuration("cleanup.interval") <= 0 {
		return errors.New("cleanup.interval must be a positive duration")
	}

	// A zero retention would purge every row on the next tick
	if v.GetDuration("cleanup.failure_retention") <= 0 {
		return errors.New("cleanup.failure_retention must be a positive duration")
	}

	if v.GetDuration("cleanup.guest_retention") <= 0 {
		return errors.New("cleanup.guest_retention must be a positive duration")
	}

	if v.GetInt("generator.requests_per_minute") < 0 {
		return errors.New("generator.requests_per_minute can't be negative")
	}

	if *SeedAdmin && v.GetString("admin.password") == "" {
		return errors.New("admin.password is required to seed the admin account")
	}

	if v.GetString("generator.api_key") == "" {
		fmt.Println("[WARNING]: generator.api_key is not set. Every generation request will fail")
	}

	return nil
}
