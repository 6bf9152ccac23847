// Package config loads process configuration for the observer pipeline core.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config aggregates every sub-system's settings.
type Config struct {
	Env string

	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Observer ObserverConfig
	Identity IdentityConfig
}

// DatabaseConfig configures the tenant Postgres connection.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig configures the schema-definition cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// ObserverConfig bounds per-observer and pipeline-wide timeouts.
type ObserverConfig struct {
	DefaultTimeout    time.Duration
	MaxPipelineBudget time.Duration
	AsyncWorkers      int
	AsyncBufferSize   int
}

// IdentityConfig configures the reference JWT identity adapter.
type IdentityConfig struct {
	Secret string
	Issuer string
}

// Load reads configuration from .env and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.Env = v.GetString("ENV")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Observer = ObserverConfig{
		DefaultTimeout:    parseDuration(v.GetString("OBSERVER_DEFAULT_TIMEOUT"), 5*time.Second),
		MaxPipelineBudget: parseDuration(v.GetString("OBSERVER_MAX_PIPELINE_BUDGET"), 0),
		AsyncWorkers:      v.GetInt("OBSERVER_ASYNC_WORKERS"),
		AsyncBufferSize:   v.GetInt("OBSERVER_ASYNC_BUFFER_SIZE"),
	}

	cfg.Identity = IdentityConfig{
		Secret: v.GetString("IDENTITY_JWT_SECRET"),
		Issuer: v.GetString("IDENTITY_JWT_ISSUER"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tenant_main")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OBSERVER_DEFAULT_TIMEOUT", "5s")
	v.SetDefault("OBSERVER_MAX_PIPELINE_BUDGET", "0s")
	v.SetDefault("OBSERVER_ASYNC_WORKERS", 4)
	v.SetDefault("OBSERVER_ASYNC_BUFFER_SIZE", 64)

	v.SetDefault("IDENTITY_JWT_SECRET", "dev_secret")
	v.SetDefault("IDENTITY_JWT_ISSUER", "monk-api")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
