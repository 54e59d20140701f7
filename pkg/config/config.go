package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	AppEnv         string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr       string `envconfig:"HTTP_ADDR"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH"`

	// Hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often a pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string `envconfig:"DATABASE_URL"`
	DirectURL   string `envconfig:"DIRECT_URL"`

	// StoreDriver selects where bookings live: "postgres" (default) or
	// "memory" for local runs without a database.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	DB        DBConfig        `envconfig:"DB"`
	JWT       JWTConfig       `envconfig:"JWT"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Rabbit    RabbitConfig    `envconfig:"RABBIT"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Admission AdmissionConfig `envconfig:"ADMISSION"`
	Log       LogConfig       `envconfig:"LOG"`
	OTel      OTelConfig      `envconfig:"OTEL"`

	// AllowedOrigins is a comma-separated allowlist for browser callers. Example:
	//   https://booking.campus.edu,http://localhost:3000
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type DBConfig struct {
	Host     string `default:"localhost"`
	Port     string `default:"5432"`
	Name     string `default:"campusbooking"`
	User     string `default:"campusbooking"`
	Password string `default:"campusbooking"`
	SSLMode  string `default:"disable"`
}

type JWTConfig struct {
	// Secret is the HS256 key shared with the identity provider that issues access tokens.
	Secret   string
	Issuer   string
	Audience string `default:"campusbooking"`
}

type RedisConfig struct {
	// URL is optional. Without it the resource catalog is read straight from
	// the store and rate limits are kept in process memory.
	URL         string
	ResourceTTL time.Duration `split_words:"true" default:"1m"`
}

type RabbitConfig struct {
	// URL is optional. Without it booking changes are not published.
	URL             string
	BookingExchange string `split_words:"true" default:"booking.exchange"`
}

type RateLimitConfig struct {
	// Bookings uses limiter's formatted rate, e.g. "20-M" (20 per minute per user).
	Bookings string `default:"20-M"`
}

type AdmissionConfig struct {
	MaxAttempts int           `split_words:"true" default:"4"`
	BaseBackoff time.Duration `split_words:"true" default:"25ms"`
	LockTimeout time.Duration `split_words:"true" default:"3s"`
}

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"text"`
	// File enables rotated file output in addition to stderr.
	File       string
	MaxSizeMB  int    `split_words:"true" default:"50"`
	MaxBackups int    `split_words:"true" default:"5"`
}

type OTelConfig struct {
	Enabled              bool   `default:"false"`
	ExporterOTLPEndpoint string `split_words:"true" default:"localhost:4317"`
	ServiceName          string `split_words:"true" default:"campusbooking"`
}

func Load() (Config, error) {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	// Container platforms set PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8081"
		}
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return Config{}, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Admission.MaxAttempts < 1 {
		cfg.Admission.MaxAttempts = 1
	}
	if cfg.AppEnv == "prod" && cfg.JWT.Secret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required in prod")
	}
	return cfg, nil
}
